package lru

import "sync/atomic"

// Manager owns the L lanes of the reclaimer and the process-wide
// entry-count counter, kept as a shared atomic since it is read and
// updated from every lane concurrently.
type Manager struct {
	lanes   []*lane
	entries atomic.Int64
}

// NewManager builds a Manager with nLanes lanes. nLanes should be prime (or
// at least odd) and roughly equal to the index's partition count, to
// spread reclaimer contention independently of index contention.
func NewManager(nLanes int) *Manager {
	if nLanes <= 0 {
		nLanes = 1
	}
	m := &Manager{lanes: make([]*lane, nLanes)}
	for i := range m.lanes {
		m.lanes[i] = &lane{}
	}
	return m
}

// NumLanes returns the configured lane count.
func (m *Manager) NumLanes() int { return len(m.lanes) }

// EntryCount returns the number of entries currently tracked (reachable or
// awaiting cleanup).
func (m *Manager) EntryCount() int64 { return m.entries.Load() }

// Track registers a brand-new node, placing it at the MRU of L1 with
// refcnt=1 (the index's own sentinel reference, held for as long as the
// entry is reachable by key). owner is stashed on the node for
// callback-driven reclaimer/demotion code.
func (m *Manager) Track(owner any) *Node {
	n := &Node{mgr: m, Owner: owner}
	n.lane = laneOf(n, len(m.lanes))
	n.refcnt = 1

	l := m.laneFor(n)
	l.mu.Lock()
	l.place(n, L1)
	l.mu.Unlock()

	m.entries.Add(1)
	return n
}

// Forget removes a node's accounting entirely; used when a freshly tracked
// record loses the index insert race and is discarded without ever having
// been reachable (the node itself is discarded, not reused).
func (m *Manager) Forget(n *Node) {
	l := m.laneFor(n)
	l.mu.Lock()
	if n.qid != QueueNone {
		l.detach(n)
		m.entries.Add(-1)
	}
	l.mu.Unlock()
}

// RefInitial takes a normal caller reference on n, adjusting LRU placement
// per the transition table (L1->L1 MRU, L2->L1 promotion, pinned
// unaffected, cleanup refused).
func (m *Manager) RefInitial(n *Node) error { return m.ref(n, RefInitial) }

// RefScan takes a scan-resistant reference: promotes within L2 to its own
// MRU but never crosses L2->L1.
func (m *Manager) RefScan(n *Node) error { return m.ref(n, RefScan) }

func (m *Manager) ref(n *Node, kind RefKind) error {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.qid == Cleanup || n.killed || n.condemned {
		return ErrDead
	}

	n.refcnt++

	switch n.qid {
	case L1:
		l.place(n, L1)
	case L2:
		if kind == RefInitial {
			l.place(n, L1)
		} else {
			l.place(n, L2)
		}
	case Pinned:
		// no movement
	}
	return nil
}

// Unref releases one reference. If the result is zero, the caller owns the
// last reference: the node is unlinked from its lane, marked condemned, and
// freed is true so the caller can tear down external state and recycle the
// record. A result of one (the sentinel) means the entry remains reachable
// and freed is false.
func (m *Manager) Unref(n *Node) (freed bool) {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	n.refcnt--
	if n.refcnt > 0 {
		return false
	}

	// Re-read under the lock already held: no racing Unref can have
	// raced us to the same transition because the lane lock serializes
	// every refcnt mutation.
	l.detach(n)
	n.condemned = true
	m.entries.Add(-1)
	return true
}

// Kill marks n unreachable from the index and moves it to the cleanup
// queue, awaiting deferred external-state teardown and the eventual last
// Unref. Idempotent.
func (m *Manager) Kill(n *Node) {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.killed {
		return
	}
	n.killed = true
	l.place(n, Cleanup)
}

// IncPin asserts a pin on n, making it ineligible for reclamation. Returns
// ErrDead if n is already on the cleanup queue. Also takes one LRU
// reference, so a pinned node is never mistaken for genuinely unreferenced.
func (m *Manager) IncPin(n *Node) error {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.qid == Cleanup || n.killed {
		return ErrDead
	}
	if n.pinRefcnt == 0 {
		l.place(n, Pinned)
	}
	n.pinRefcnt++
	n.refcnt++
	return nil
}

// DecPin releases one pin. When the pin count reaches zero, the node moves
// back to the MRU of L1 and reachedZero reports whether the caller
// should now close any descriptor it was holding open on the entry's
// behalf purely because of the pin.
func (m *Manager) DecPin(n *Node) (reachedZero bool) {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.pinRefcnt > 0 {
		n.pinRefcnt--
	}
	n.refcnt--
	if n.pinRefcnt == 0 && n.qid == Pinned {
		l.place(n, L1)
		return true
	}
	return false
}

// ReclaimPass walks up to perLaneWork entries from the LRU end of L1 in
// every lane, demoting eligible entries to L2. closeFn is invoked with the
// lane lock NOT held, since a lane lock must never be held across a
// backend call, so it may safely take the entry's content lock and call
// into the backend to close a cached descriptor; it returns whether a
// descriptor was actually open and got closed. ReclaimPass returns how
// many entries were demoted.
func (m *Manager) ReclaimPass(perLaneWork int, closeFn func(owner any) bool) int {
	demoted := 0
	for _, l := range m.lanes {
		demoted += m.reclaimLane(l, perLaneWork, closeFn)
	}
	return demoted
}

func (m *Manager) reclaimLane(l *lane, perLaneWork int, closeFn func(owner any) bool) int {
	demoted := 0

	l.mu.Lock()
	n := l.l1.tail
	l.mu.Unlock()

	for attempts := 0; attempts < perLaneWork && n != nil; attempts++ {
		l.mu.Lock()
		if n.qid != L1 {
			// n was moved off L1 by a concurrent operation since we last
			// looked; the walk position is no longer valid to resume from.
			l.mu.Unlock()
			break
		}
		if n.pinRefcnt > 0 || n.condemned || n.killed || n.refcnt != 1 {
			// Not currently evictable: leave its queue position alone —
			// bumping it to MRU would let a merely-busy entry outlive
			// genuinely recently-used ones — and continue the walk toward
			// the MRU end so the scan still makes forward progress.
			next := n.prev
			l.mu.Unlock()
			n = next
			continue
		}
		// Take a short-lived extra reference and detach for the
		// backend call, which must happen outside the lane lock.
		next := n.prev
		n.refcnt = 2
		l.detach(n)
		l.mu.Unlock()

		closeFn(n.Owner)

		l.mu.Lock()
		n.refcnt = 1
		l.place(n, L2)
		l.mu.Unlock()

		demoted++
		n = next
	}
	return demoted
}

// ReapCandidate scans lane index lanePick's L2 then L1 queues (LRU end
// first) for a node with no outstanding references beyond the index
// sentinel (refcnt==1). It does not remove the node from any structure —
// callers must still validate under the index's exclusive latch and then
// call TryCondemn, since a reference may be granted to the node between
// this scan and the caller's index removal.
func (m *Manager) ReapCandidate(lanePick int) *Node {
	l := m.lanes[lanePick%len(m.lanes)]
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, q := range []*queue{&l.l2, &l.l1} {
		for n := q.tail; n != nil; n = n.prev {
			if n.refcnt == 1 && n.pinRefcnt == 0 && !n.condemned && !n.killed {
				return n
			}
		}
	}
	return nil
}

// TryCondemn validates that n is still unreferenced (refcnt==1) and, if so,
// unlinks it from its lane and marks it condemned so it can be recycled by
// the caller (who is expected to have already removed n's key from the
// index under an exclusive latch). Returns false if another goroutine
// raced in a reference since ReapCandidate's scan.
func (m *Manager) TryCondemn(n *Node) bool {
	l := m.laneFor(n)
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.refcnt != 1 || n.pinRefcnt != 0 || n.condemned || n.killed {
		return false
	}
	l.detach(n)
	n.condemned = true
	m.entries.Add(-1)
	return true
}
