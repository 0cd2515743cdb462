package dirent

import (
	"errors"

	"github.com/ganesha-go/mdcache/internal/fhkey"
)

// ErrExists is returned by Rename when the destination name is already
// occupied and the caller did not request an overwrite.
var ErrExists = errors.New("dirent: name exists")

// ErrNotFound is returned by operations addressing a name that is not
// present among the live entries.
var ErrNotFound = errors.New("dirent: not found")

// ErrBadCookie is returned when a readdir cursor names a reserved value
// (1 or 2).
var ErrBadCookie = errors.New("dirent: bad cookie")

// Directory is the per-directory substructure: two ordered maps (by
// cookie) — one holding live entries, one holding deleted entries retained
// so a previously issued cookie can still resolve to "no longer present,
// next cookie is ...". Directory itself performs no locking; the parent
// cache entry's content lock protects it, since a dirent's weak key
// reference is only valid while that lock is held.
type Directory struct {
	names   orderedMap // live, keyed by HK.K
	cookies orderedMap // deleted, keyed by HK.K

	byName        map[string]*Dirent // live, for O(1) name lookup
	deletedByName map[string]*Dirent // most recent deleted record per name, for recycle-on-reinsert

	maxDeletedCookies int
	nextProbe         uint64 // not read or written by any method; probing is findFreeCookie's alone
}

// New constructs an empty Directory. maxDeletedCookies bounds the size of
// the deleted-cookie structure as a soft memory bound; 0 means use the
// default of 65535.
func New(maxDeletedCookies int) *Directory {
	if maxDeletedCookies <= 0 {
		maxDeletedCookies = 65535
	}
	return &Directory{
		byName:            make(map[string]*Dirent),
		deletedByName:     make(map[string]*Dirent),
		maxDeletedCookies: maxDeletedCookies,
	}
}

// Lookup returns the live dirent for name, if any.
func (d *Directory) Lookup(name string) (*Dirent, bool) {
	e, ok := d.byName[name]
	return e, ok
}

// Len reports the number of live entries.
func (d *Directory) Len() int { return d.names.Len() }

// findFreeCookie probes for a cookie value unused by either the live or
// deleted structures, starting from name's base hash: first quadratically
// (candidate = base + i*i, for i up to MaxQuadraticProbes), then linearly.
// Returns the chosen cookie and the probe depth it took to find it.
func (d *Directory) findFreeCookie(name string) (uint64, uint32) {
	base := adjust(hashName(name))

	var depth uint32
	for i := uint64(0); i < MaxQuadraticProbes; i++ {
		cand := adjust(base + i*i)
		if !d.names.Has(cand) && !d.cookies.Has(cand) {
			return cand, depth
		}
		depth++
	}

	// Linear fallback, offset past the quadratic span already tried.
	for i := uint64(1); ; i++ {
		cand := adjust(base + MaxQuadraticProbes*MaxQuadraticProbes + i)
		if !d.names.Has(cand) && !d.cookies.Has(cand) {
			return cand, depth
		}
		depth++
	}
}

// Insert adds name -> child to the live set. If name was previously
// deleted, its old cookie slot is recycled — only ever for the same name.
// Returns ErrExists if name is already live.
func (d *Directory) Insert(name string, child fhkey.Key) (*Dirent, error) {
	if _, ok := d.byName[name]; ok {
		return nil, ErrExists
	}

	if prev, ok := d.deletedByName[name]; ok {
		d.cookies.Delete(prev.HK.K)
		delete(d.deletedByName, name)
		prev.Deleted = false
		prev.Child = child
		d.names.Put(prev.HK.K, prev)
		d.byName[name] = prev
		return prev, nil
	}

	cookie, depth := d.findFreeCookie(name)
	e := &Dirent{Name: name, Child: child}
	e.HK.K = cookie
	e.HK.P = depth

	d.names.Put(cookie, e)
	d.byName[name] = e
	return e, nil
}

// Delete moves name's live record to the deleted set, retaining its cookie
// so in-flight readdir cursors still resolve. Returns ErrNotFound if name
// is not currently live.
func (d *Directory) Delete(name string) error {
	e, ok := d.byName[name]
	if !ok {
		return ErrNotFound
	}
	d.names.Delete(e.HK.K)
	delete(d.byName, name)

	e.Deleted = true
	d.cookies.Put(e.HK.K, e)
	d.deletedByName[name] = e
	d.evictDeletedIfNeeded()
	return nil
}

// evictDeletedIfNeeded enforces MaxDeletedCookies by dropping the smallest
// cookie in the deleted set once the cap is exceeded. The dropped slot is
// simply forgotten — it is never handed to a different name while still
// tracked, and once forgotten it is indistinguishable from any other
// currently-unused cookie value — the cap is a soft memory bound only.
func (d *Directory) evictDeletedIfNeeded() {
	for d.cookies.Len() > d.maxDeletedCookies {
		k, ok := d.cookies.Min()
		if !ok {
			return
		}
		if v, ok := d.cookies.Get(k); ok {
			delete(d.deletedByName, v.Name)
		}
		d.cookies.Delete(k)
	}
}

// Rename moves oldName's live record to newName. If newName already has a
// live record: when overwrite is true the caller has already validated and
// invalidated the clobbered child and the clobbered Dirent is returned
// for bookkeeping, replaced in place; when overwrite is false, ErrExists
// is returned and nothing changes. Otherwise the same record is moved to
// newName under a fresh cookie: oldName's record is not marked deleted and
// its old cookie is not kept in the deleted set, so a readdir cursor
// holding that cookie resumes at the next live cookie after it.
func (d *Directory) Rename(oldName, newName string, overwrite bool) (clobbered *Dirent, err error) {
	oldEntry, ok := d.byName[oldName]
	if !ok {
		return nil, ErrNotFound
	}

	if existing, ok := d.byName[newName]; ok {
		if !overwrite {
			return nil, ErrExists
		}
		// Replace in place: same cookie slot, new name/child, dirent
		// tree size unchanged.
		delete(d.byName, oldName)
		d.names.Delete(oldEntry.HK.K)

		existing.Child = oldEntry.Child
		d.byName[newName] = existing
		return existing, nil
	}

	// Unlink the record from its old name and cookie; it is re-keyed
	// under newName below rather than going through the delete path.
	delete(d.byName, oldName)
	d.names.Delete(oldEntry.HK.K)

	cookie, depth := d.findFreeCookie(newName)
	if _, exists := d.names.Get(cookie); exists {
		// Collision: undelete the old record and fail.
		d.byName[oldName] = oldEntry
		d.names.Put(oldEntry.HK.K, oldEntry)
		return nil, ErrExists
	}

	oldEntry.Name = newName
	oldEntry.HK.K = cookie
	oldEntry.HK.P = depth
	d.names.Put(cookie, oldEntry)
	d.byName[newName] = oldEntry
	return nil, nil
}

// Start resolves a readdir cursor to the index within the live ordered set
// to resume from. cookie==0 means "from the beginning"; 1 and 2 are
// rejected as reserved. Any other value resolves to the first live entry
// whose cookie is strictly greater than it — so a dirent's own cookie
// always resumes after it, and a deleted dirent's cookie resolves to its
// live supremum rather than ever matching itself.
func (d *Directory) Start(cookie uint64) (int, error) {
	switch cookie {
	case CookieStart:
		return 0, nil
	case CookieReserved1, CookieReserved2:
		return 0, ErrBadCookie
	default:
		return d.names.FirstGreater(cookie), nil
	}
}

// At returns the live dirent at ordered position i, for readdir
// enumeration; the bool is false when i is out of range.
func (d *Directory) At(i int) (*Dirent, bool) {
	if i < 0 || i >= d.names.Len() {
		return nil, false
	}
	_, e := d.names.At(i)
	return e, true
}
