package lru

import "testing"

func TestTrackPlacesAtL1WithSentinel(t *testing.T) {
	m := NewManager(4)
	n := m.Track("owner")
	if n.QueueID() != L1 {
		t.Fatalf("new node queue = %v, want L1", n.QueueID())
	}
	if n.Refs() != 1 {
		t.Fatalf("new node refcnt = %d, want 1 (index sentinel)", n.Refs())
	}
	if m.EntryCount() != 1 {
		t.Fatalf("EntryCount = %d, want 1", m.EntryCount())
	}
}

func TestRefInitialPromotesL2ToL1(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	// Force it into L2 by demoting through a reclaim pass.
	m.ReclaimPass(1, func(any) bool { return false })
	if n.QueueID() != L2 {
		t.Fatalf("expected demotion to L2, got %v", n.QueueID())
	}

	if err := m.RefInitial(n); err != nil {
		t.Fatalf("RefInitial: %v", err)
	}
	if n.QueueID() != L1 {
		t.Fatalf("RefInitial on an L2 node should promote to L1, got %v", n.QueueID())
	}
}

func TestRefScanDoesNotPromote(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.ReclaimPass(1, func(any) bool { return false })
	if n.QueueID() != L2 {
		t.Fatalf("expected demotion to L2, got %v", n.QueueID())
	}

	if err := m.RefScan(n); err != nil {
		t.Fatalf("RefScan: %v", err)
	}
	if n.QueueID() != L2 {
		t.Fatalf("RefScan must not promote L2->L1, got %v", n.QueueID())
	}
}

func TestRefOnCleanupFails(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.Kill(n)
	if err := m.RefInitial(n); err != ErrDead {
		t.Fatalf("RefInitial on a killed node = %v, want ErrDead", err)
	}
}

func TestUnrefToZeroFreesAndCondemns(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	if err := m.RefInitial(n); err != nil {
		t.Fatalf("RefInitial: %v", err)
	}
	if freed := m.Unref(n); freed {
		t.Fatal("Unref from refcnt=2 should not report freed")
	}
	if freed := m.Unref(n); !freed {
		t.Fatal("Unref down to the sentinel's last ref should report freed")
	}
	if m.EntryCount() != 0 {
		t.Fatalf("EntryCount after last Unref = %d, want 0", m.EntryCount())
	}
}

func TestKillIdempotent(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.Kill(n)
	m.Kill(n)
	if n.QueueID() != Cleanup {
		t.Fatalf("node queue after Kill = %v, want Cleanup", n.QueueID())
	}
}

func TestPinProtocol(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	if err := m.IncPin(n); err != nil {
		t.Fatalf("IncPin: %v", err)
	}
	if n.QueueID() != Pinned {
		t.Fatalf("queue after IncPin = %v, want Pinned", n.QueueID())
	}
	if n.PinRefs() != 1 {
		t.Fatalf("PinRefs = %d, want 1", n.PinRefs())
	}
	if n.Refs() != 2 {
		t.Fatalf("IncPin should also take an LRU ref, Refs() = %d, want 2", n.Refs())
	}

	reachedZero := m.DecPin(n)
	if !reachedZero {
		t.Fatal("DecPin from pinRefcnt=1 should report reachedZero=true")
	}
	if n.QueueID() != L1 {
		t.Fatalf("queue after pin released = %v, want L1", n.QueueID())
	}
}

func TestIncPinOnCleanupFails(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.Kill(n)
	if err := m.IncPin(n); err != ErrDead {
		t.Fatalf("IncPin on killed node = %v, want ErrDead", err)
	}
}

func TestReclaimPassSkipsPinnedAndMultiRef(t *testing.T) {
	m := NewManager(1)
	pinned := m.Track("pinned")
	m.IncPin(pinned)

	referenced := m.Track("referenced")
	m.RefInitial(referenced)

	plain := m.Track("plain")

	closed := map[string]bool{}
	m.ReclaimPass(8, func(owner any) bool {
		closed[owner.(string)] = true
		return true
	})

	if pinned.QueueID() != Pinned {
		t.Fatalf("pinned node must stay in Pinned queue, got %v", pinned.QueueID())
	}
	if referenced.QueueID() != L1 {
		t.Fatalf("multiply-referenced node must not be demoted, got %v", referenced.QueueID())
	}
	if plain.QueueID() != L2 {
		t.Fatalf("unreferenced node should be demoted to L2, got %v", plain.QueueID())
	}
	if !closed["plain"] {
		t.Fatal("closeFn should be invoked for the demoted node")
	}
	if closed["pinned"] || closed["referenced"] {
		t.Fatal("closeFn should not be invoked for skipped nodes")
	}
}

func TestReapCandidateAndTryCondemn(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.ReclaimPass(1, func(any) bool { return false }) // demote to L2

	cand := m.ReapCandidate(0)
	if cand != n {
		t.Fatalf("ReapCandidate should find the unreferenced L2 node")
	}
	if !m.TryCondemn(cand) {
		t.Fatal("TryCondemn should succeed on an unreferenced, unpinned candidate")
	}
	if m.EntryCount() != 0 {
		t.Fatalf("EntryCount after TryCondemn = %d, want 0", m.EntryCount())
	}
}

func TestTryCondemnFailsIfReferenced(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	m.RefInitial(n)
	if m.TryCondemn(n) {
		t.Fatal("TryCondemn must fail when the node has outstanding references")
	}
}

func TestForgetRemovesAccounting(t *testing.T) {
	m := NewManager(1)
	n := m.Track("owner")
	if m.EntryCount() != 1 {
		t.Fatal("expected 1 tracked entry")
	}
	m.Forget(n)
	if m.EntryCount() != 0 {
		t.Fatalf("EntryCount after Forget = %d, want 0", m.EntryCount())
	}
}
