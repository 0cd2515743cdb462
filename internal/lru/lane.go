package lru

import "sync"

// queue is a plain doubly-linked list of Nodes using each Node's own
// next/prev fields. head is the MRU end, tail is the LRU end — mirroring
// the teacher's clockpro ring but without the circular wraparound, since
// each of L1/L2/pinned/cleanup is walked end-to-end rather than via a
// persistent hand pointer.
type queue struct {
	head, tail *Node
	n          int
}

func (q *queue) pushMRU(node *Node) {
	node.prev = nil
	node.next = q.head
	if q.head != nil {
		q.head.prev = node
	}
	q.head = node
	if q.tail == nil {
		q.tail = node
	}
	q.n++
}

func (q *queue) remove(node *Node) {
	if node.prev != nil {
		node.prev.next = node.next
	} else if q.head == node {
		q.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else if q.tail == node {
		q.tail = node.prev
	}
	node.next, node.prev = nil, nil
	q.n--
}

// popLRU removes and returns the tail (least-recently-used) node, or nil if
// empty.
func (q *queue) popLRU() *Node {
	n := q.tail
	if n != nil {
		q.remove(n)
	}
	return n
}

func (q *queue) len() int { return q.n }

// lane owns one shard of the LRU queue space: its own mutex plus the four
// queues (L1, L2, Pinned, Cleanup). The lane mutex is never held across
// any other lock — callers that need to also take an entry's content lock
// (e.g. to close a descriptor during demotion) must release the lane lock
// first.
type lane struct {
	mu                          sync.Mutex
	l1, l2, pinned, cleanup     queue
}

func (m *Manager) laneFor(n *Node) *lane { return m.lanes[n.lane] }

func (l *lane) queueFor(id QueueID) *queue {
	switch id {
	case L1:
		return &l.l1
	case L2:
		return &l.l2
	case Pinned:
		return &l.pinned
	case Cleanup:
		return &l.cleanup
	default:
		return nil
	}
}

// detach removes n from whichever queue it currently occupies (no-op if
// QueueNone). Caller must hold l.mu.
func (l *lane) detach(n *Node) {
	if q := l.queueFor(n.qid); q != nil {
		q.remove(n)
	}
	n.qid = QueueNone
}

// place moves n into queue id at its MRU position. Caller must hold l.mu.
func (l *lane) place(n *Node, id QueueID) {
	l.detach(n)
	if q := l.queueFor(id); q != nil {
		q.pushMRU(n)
	}
	n.qid = id
}
