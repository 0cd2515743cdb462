// Package dirent implements the per-directory name/cookie substructure
// supporting O(log n) name lookup and cursor-stable readdir.
//
// Grounded directly on original_source/src/cache_inode/cache_inode_avl.c
// and src/include/cache_inode_avl.h: the HK (hash-key) field names `K`
// (the 64-bit pseudo-cookie) and `P` (probe depth) are kept verbatim. The
// weak child reference (a key copy, never a pointer) follows
// hanwen-go-fuse's nodefs/inode.go parent/child bookkeeping, which resolves
// child references only through a synchronized structure rather than a raw
// pointer a reclaimed node could dangle.
//
// © 2025 mdcache authors. MIT License.
package dirent

import (
	"hash/fnv"

	"github.com/ganesha-go/mdcache/internal/fhkey"
)

// Reserved cookie values: 0 starts an enumeration from the beginning, 1
// and 2 are never issued so that protocol dot/dotdot encodings never
// collide with a real cookie.
const (
	CookieStart    uint64 = 0
	CookieReserved1 uint64 = 1
	CookieReserved2 uint64 = 2
	firstValidCookie uint64 = 3
)

// MaxQuadraticProbes bounds the quadratic-probing phase before falling
// back to linear probing.
const MaxQuadraticProbes = 8

// Dirent is one directory-entry record: a name, a weak (key-only) reference
// to the child, and the cursor fields used to make readdir cookie-stable
// across concurrent mutation.
type Dirent struct {
	Name    string
	Child   fhkey.Key // weak: resolving it always goes back through the index
	Deleted bool

	HK struct {
		K uint64 // 64-bit pseudo-cookie, the record's key in both ordered maps
		P uint32 // probe depth at insertion time
	}
}

// hashName derives the unadjusted base hash of a child name. Seeded with a
// fixed value so cookie assignment is reproducible across runs (relevant
// for tests asserting specific probe/collision behavior).
func hashName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// adjust folds an arbitrary 64-bit value into the valid cookie domain
// (>= firstValidCookie), never landing on a reserved value.
func adjust(v uint64) uint64 {
	if v < firstValidCookie {
		v += firstValidCookie
	}
	return v
}
