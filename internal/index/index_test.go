package index

import (
	"testing"

	"github.com/ganesha-go/mdcache/internal/fhkey"
)

type testEntry struct {
	key fhkey.Key
	val int
}

func (e *testEntry) Key() fhkey.Key { return e.key }

func insert(t *testing.T, ix *Index[*testEntry], k fhkey.Key, e *testEntry) {
	t.Helper()
	_, found, latch := ix.GetLatched(k, Exclusive)
	if found {
		t.Fatalf("key %v unexpectedly already present", k)
	}
	if res := ix.SetLatched(&latch, k, e, false); res != Inserted {
		t.Fatalf("SetLatched = %v, want Inserted", res)
	}
}

func TestGetLatchedMiss(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("missing"))
	_, found, latch := ix.GetLatched(k, Shared)
	if found {
		t.Fatal("expected miss on empty index")
	}
	ix.ReleaseLatched(&latch)
}

func TestInsertThenGet(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("a"))
	e := &testEntry{key: k, val: 7}
	insert(t, ix, k, e)

	got, found, latch := ix.GetLatched(k, Shared)
	if !found {
		t.Fatal("expected hit after insert")
	}
	if got.val != 7 {
		t.Fatalf("got.val = %d, want 7", got.val)
	}
	ix.ReleaseLatched(&latch)
}

func TestSetLatchedExistsWithoutOverwrite(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("dup"))
	e := &testEntry{key: k, val: 1}
	insert(t, ix, k, e)

	_, found, latch := ix.GetLatched(k, Exclusive)
	if !found {
		t.Fatal("expected hit")
	}
	res := ix.SetLatched(&latch, k, &testEntry{key: k, val: 2}, false)
	if res != Exists {
		t.Fatalf("SetLatched overwrite=false on existing key = %v, want Exists", res)
	}

	got, found, latch2 := ix.GetLatched(k, Shared)
	if !found || got.val != 1 {
		t.Fatalf("value must be unchanged after a rejected overwrite, got %+v", got)
	}
	ix.ReleaseLatched(&latch2)
}

func TestSetLatchedOverwrite(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("dup2"))
	insert(t, ix, k, &testEntry{key: k, val: 1})

	_, found, latch := ix.GetLatched(k, Exclusive)
	if !found {
		t.Fatal("expected hit")
	}
	res := ix.SetLatched(&latch, k, &testEntry{key: k, val: 2}, true)
	if res != Overwritten {
		t.Fatalf("SetLatched overwrite=true = %v, want Overwritten", res)
	}

	got, found, latch2 := ix.GetLatched(k, Shared)
	if !found || got.val != 2 {
		t.Fatalf("expected overwritten value 2, got %+v", got)
	}
	ix.ReleaseLatched(&latch2)
}

func TestDeleteLatched(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("del"))
	insert(t, ix, k, &testEntry{key: k, val: 1})

	_, found, latch := ix.GetLatched(k, Exclusive)
	if !found {
		t.Fatal("expected hit before delete")
	}
	if ok := ix.DeleteLatched(&latch, k, false); !ok {
		t.Fatal("DeleteLatched should report true for a present key")
	}

	_, found, latch2 := ix.GetLatched(k, Shared)
	if found {
		t.Fatal("key must be gone after DeleteLatched")
	}
	ix.ReleaseLatched(&latch2)
}

func TestDeleteLatchedMissingKey(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("ghost"))
	_, found, latch := ix.GetLatched(k, Exclusive)
	if found {
		t.Fatal("expected miss")
	}
	if ok := ix.DeleteLatched(&latch, k, false); ok {
		t.Fatal("DeleteLatched on an absent key should report false")
	}
}

func TestForEachVisitsAllEntries(t *testing.T) {
	ix := New[*testEntry](4, 4)
	want := map[string]int{}
	for i := 0; i < 50; i++ {
		k := fhkey.New(1, []byte{byte(i)})
		insert(t, ix, k, &testEntry{key: k, val: i})
		want[string(k.Handle)] = i
	}

	got := map[string]int{}
	ix.ForEach(func(e *testEntry) {
		got[string(e.key.Handle)] = e.val
	})

	if len(got) != len(want) {
		t.Fatalf("ForEach visited %d entries, want %d", len(got), len(want))
	}
	for hk, v := range want {
		if got[hk] != v {
			t.Fatalf("entry %q = %d, want %d", hk, got[hk], v)
		}
	}
}

func TestForEachUnsafeMatchesForEach(t *testing.T) {
	ix := New[*testEntry](4, 4)
	for i := 0; i < 20; i++ {
		k := fhkey.New(1, []byte{byte(i)})
		insert(t, ix, k, &testEntry{key: k, val: i})
	}

	var safeCount, unsafeCount int
	ix.ForEach(func(*testEntry) { safeCount++ })
	ix.ForEachUnsafe(func(*testEntry) { unsafeCount++ })
	if safeCount != unsafeCount || safeCount != 20 {
		t.Fatalf("safeCount=%d unsafeCount=%d, want both 20", safeCount, unsafeCount)
	}
}

func TestLen(t *testing.T) {
	ix := New[*testEntry](4, 4)
	if ix.Len() != 0 {
		t.Fatalf("new index Len() = %d, want 0", ix.Len())
	}
	for i := 0; i < 10; i++ {
		k := fhkey.New(1, []byte{byte(i)})
		insert(t, ix, k, &testEntry{key: k, val: i})
	}
	if ix.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", ix.Len())
	}
}

func TestReleaseLatchedIdempotent(t *testing.T) {
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("once"))
	_, _, latch := ix.GetLatched(k, Shared)
	ix.ReleaseLatched(&latch)
	ix.ReleaseLatched(&latch) // must not double-unlock
}

func TestSetLatchedPanicsWithoutExclusive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("SetLatched with a shared latch must panic")
		}
	}()
	ix := New[*testEntry](4, 4)
	k := fhkey.New(1, []byte("x"))
	_, _, latch := ix.GetLatched(k, Shared)
	ix.SetLatched(&latch, k, &testEntry{key: k}, true)
}
