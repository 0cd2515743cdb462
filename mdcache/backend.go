// Package mdcache implements the metadata and file-descriptor cache core of
// a user-space NFS/9P file server: a partitioned hash index, multi-queue
// LRU reclaimer, entry lifecycle, directory substructure, and the
// high-level operations built on top of them.
//
// The cache is a library positioned between protocol request handlers and
// a pluggable Backend. It is not authoritative storage, provides no
// durability, and does not serialize concurrent mutations the backend
// itself permits — it keeps a coherent local view with explicit
// invalidation.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import "context"

// FileType tags the kind of object a cache Entry represents.
type FileType uint8

const (
	Unknown FileType = iota
	RegularFile
	Directory
	Symlink
	Socket
	Fifo
	CharDev
	BlockDev
)

// Attrs is the set of cached attributes the entry lifecycle tracks.
type Attrs struct {
	Size    uint64
	Mode    uint32
	UID     uint32
	GID     uint32
	Atime   int64
	Mtime   int64
	Ctime   int64
	Nlink   uint32
	Change  uint64 // change counter, bumped on every mutation the backend reports
	ACL     []byte
	FSID    uint64
	FileID  uint64
}

// OpenFlags mirrors the minimal open-mode vocabulary the cache needs to
// decide whether an existing descriptor satisfies a new request.
type OpenFlags uint8

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
)

// DescStatus is the cached state of a regular file's backend descriptor.
type DescStatus uint8

const (
	DescClosed DescStatus = iota
	DescRead
	DescWrite
	DescReadWrite
)

// Handle is the backend's opaque reference to an open or resolvable
// object. The cache treats it as opaque and never inspects it.
type Handle any

// ReaddirCallback is invoked by Backend.Readdir for each directory entry
// the backend enumerates; returning false stops the enumeration early.
type ReaddirCallback func(name string, cookie uint64) bool

// Backend is the pluggable file-system abstraction the cache delegates
// durable operations to. The cache never downcasts a Handle; per-type
// variant data on a cache Entry mirrors the type the backend reports and
// is validated by assertion at the call site that first learns the type.
type Backend interface {
	// ID identifies this backend instance; folded into every derived
	// fhkey.Key so two backends never collide on identical handle bytes.
	ID() uint16

	CreateHandle(ctx context.Context, keyBytes []byte) (Handle, error)
	HandleToKey(ctx context.Context, h Handle) ([]byte, error)
	Release(ctx context.Context, h Handle) error

	Lookup(ctx context.Context, dir Handle, name string) (Handle, error)
	Readdir(ctx context.Context, dir Handle, start uint64, cb ReaddirCallback) error

	Open(ctx context.Context, h Handle, flags OpenFlags) error
	Reopen(ctx context.Context, h Handle, flags OpenFlags) error
	Close(ctx context.Context, h Handle) error
	Status(ctx context.Context, h Handle) (DescStatus, error)

	Read(ctx context.Context, h Handle, off int64, length int) (data []byte, eof bool, err error)
	Write(ctx context.Context, h Handle, off int64, data []byte, sync bool) (n int, syncDone bool, err error)
	Commit(ctx context.Context, h Handle, off int64, length int) error

	GetAttrs(ctx context.Context, h Handle) (Attrs, error)
	SetAttrs(ctx context.Context, h Handle, attrs Attrs) (Attrs, error)

	Create(ctx context.Context, dir Handle, name string, mode uint32, arg any) (Handle, error)
	Mkdir(ctx context.Context, dir Handle, name string, mode uint32) (Handle, error)
	Symlink(ctx context.Context, dir Handle, name string, target string) (Handle, error)
	Mknod(ctx context.Context, dir Handle, name string, typ FileType, mode uint32, dev uint64) (Handle, error)

	Link(ctx context.Context, h Handle, dir Handle, name string) error
	Unlink(ctx context.Context, dir Handle, name string) error
	Rename(ctx context.Context, dir Handle, oldName string, newDir Handle, newName string) error

	Readlink(ctx context.Context, h Handle, refresh bool) (string, error)
}
