package dirent

import "sort"

// orderedMap is a slice-backed ordered map keyed by uint64, sorted
// ascending. It stands in for the balanced tree a directory's `names` and
// `cookies` structures need — the retrieval pack and the Go standard library
// offer no ordered-map container, so insert/delete pay an O(n) shift in
// exchange for O(log n) search and trivial, obviously-correct range
// iteration for readdir. Directory sizes in the cache's working set are
// small enough (a live NFS client rarely pages through a multi-million
// entry directory in one session) that this is a deliberate, documented
// simplification rather than a silent one. See DESIGN.md.
type orderedMap struct {
	keys []uint64
	vals []*Dirent
}

func (m *orderedMap) search(key uint64) (idx int, found bool) {
	idx = sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= key })
	found = idx < len(m.keys) && m.keys[idx] == key
	return
}

func (m *orderedMap) Get(key uint64) (*Dirent, bool) {
	idx, found := m.search(key)
	if !found {
		return nil, false
	}
	return m.vals[idx], true
}

func (m *orderedMap) Has(key uint64) bool {
	_, found := m.search(key)
	return found
}

// Put inserts or replaces the value at key.
func (m *orderedMap) Put(key uint64, d *Dirent) {
	idx, found := m.search(key)
	if found {
		m.vals[idx] = d
		return
	}
	m.keys = append(m.keys, 0)
	m.vals = append(m.vals, nil)
	copy(m.keys[idx+1:], m.keys[idx:])
	copy(m.vals[idx+1:], m.vals[idx:])
	m.keys[idx] = key
	m.vals[idx] = d
}

// Delete removes key, reporting whether it was present.
func (m *orderedMap) Delete(key uint64) bool {
	idx, found := m.search(key)
	if !found {
		return false
	}
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	m.vals = append(m.vals[:idx], m.vals[idx+1:]...)
	return true
}

// FirstGreater returns the index of the first entry whose key is strictly
// greater than cookie (len(m.keys) if none). Used to resolve a readdir
// cursor: a dirent's own cookie resumes *after* it, and a deleted dirent's
// cookie resolves to its live supremum, never to a match on itself.
func (m *orderedMap) FirstGreater(cookie uint64) int {
	return sort.Search(len(m.keys), func(i int) bool { return m.keys[i] > cookie })
}

// FirstGreaterEqual returns the index of the first entry whose key is >=
// cookie (len(m.keys) if none).
func (m *orderedMap) FirstGreaterEqual(cookie uint64) int {
	return sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= cookie })
}

func (m *orderedMap) Len() int { return len(m.keys) }

func (m *orderedMap) At(i int) (uint64, *Dirent) { return m.keys[i], m.vals[i] }

// Min returns the smallest key currently present, and whether the map is
// non-empty.
func (m *orderedMap) Min() (uint64, bool) {
	if len(m.keys) == 0 {
		return 0, false
	}
	return m.keys[0], true
}
