package fhkey

import "testing"

func TestNewClonesHandle(t *testing.T) {
	buf := []byte("handle-1")
	k := New(7, buf)
	buf[0] = 'X'
	if k.Handle[0] == 'X' {
		t.Fatal("New must not alias the caller's handle slice")
	}
	if !k.Valid() {
		t.Fatal("key built via New must be valid")
	}
}

func TestZeroKeyInvalid(t *testing.T) {
	var k Key
	if k.Valid() {
		t.Fatal("zero Key must report invalid")
	}
}

func TestEqual(t *testing.T) {
	a := New(1, []byte("foo"))
	b := New(1, []byte("foo"))
	c := New(2, []byte("foo"))
	d := New(1, []byte("bar"))

	if !a.Equal(b) {
		t.Fatal("identical backend id + handle must compare equal")
	}
	if a.Equal(c) {
		t.Fatal("different backend id must not compare equal")
	}
	if a.Equal(d) {
		t.Fatal("different handle bytes must not compare equal")
	}
}

func TestCloneIndependent(t *testing.T) {
	a := New(1, []byte("foo"))
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone must compare equal to original")
	}
	b.Handle[0] = 'Z'
	if a.Handle[0] == 'Z' {
		t.Fatal("clone must not share backing array with original")
	}
}

func TestPartitionDeterministic(t *testing.T) {
	k := New(3, []byte("stable"))
	p1 := k.Partition(64)
	p2 := k.Partition(64)
	if p1 != p2 {
		t.Fatal("Partition must be deterministic for a given key")
	}
	if p1 < 0 || p1 >= 64 {
		t.Fatalf("partition %d out of range [0,64)", p1)
	}
}

func TestLessTotalOrder(t *testing.T) {
	a := New(1, []byte("aaa"))
	b := New(1, []byte("aaa"))
	// Same key must not be strictly less than itself either way.
	if a.Less(b) || b.Less(a) {
		t.Fatal("equal keys must not be ordered strictly less than each other")
	}

	c := New(1, []byte("zzz"))
	if a.hash == c.hash {
		t.Skip("hash collision between fixtures, cannot assert order by content")
	}
	lo, hi := a, c
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	if !lo.Less(hi) || hi.Less(lo) {
		t.Fatal("Less must give a consistent strict order for distinct hashes")
	}
}

func TestHashStableAcrossCalls(t *testing.T) {
	h1 := New(42, []byte("same-handle")).Hash()
	h2 := New(42, []byte("same-handle")).Hash()
	if h1 != h2 {
		t.Fatal("hash must be a pure function of (backendID, handle)")
	}
}
