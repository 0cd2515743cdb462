// ops_read.go implements readlink, readdir, and rdwr: the cached-content
// paths that fall back to the backend only when the cached view is not
// currently trusted.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"

	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/mderr"
)

// Readlink returns a symlink entry's target, refreshing from the backend
// if the cached target is not currently trusted.
func (c *Cache) Readlink(ctx context.Context, entry *Entry) (string, error) {
	ctx = ctxOrBackground(ctx)
	if entry.typ != Symlink {
		return "", mderr.New(mderr.BadType, "readlink")
	}

	entry.Content.RLock()
	if entry.trustContentPopulated() {
		target := string(entry.symlink.target)
		entry.Content.RUnlock()
		return target, nil
	}
	entry.Content.RUnlock()

	entry.Content.Lock()
	defer entry.Content.Unlock()
	if entry.trustContentPopulated() {
		return string(entry.symlink.target), nil
	}
	target, err := c.backend.Readlink(ctx, entry.handle, true)
	if err != nil {
		return "", c.translateAndMaybeKill(ctx, entry, err)
	}
	entry.symlink.target = []byte(target)
	entry.setFlag(flagTrustContent)
	entry.setFlag(flagDirPopulated)
	return target, nil
}

// EntryReaddirCallback is invoked for each live directory entry Readdir
// enumerates; returning false stops the enumeration early. Distinct from
// Backend's ReaddirCallback: this one hands the caller an already-resolved
// *Entry instead of a bare name.
type EntryReaddirCallback func(name string, child *Entry, cookie uint64) bool

type direntSnapshot struct {
	name   string
	key    fhkey.Key
	cookie uint64
}

// Readdir enumerates dir's live children starting from startCookie (0 for
// the beginning), populating the directory from the backend first if it
// is not already trusted. It returns the count of entries actually
// delivered to cb and whether the enumeration reached end-of-directory.
func (c *Cache) Readdir(ctx context.Context, dir *Entry, startCookie uint64, cb EntryReaddirCallback) (nbFound int, eod bool, err error) {
	ctx = ctxOrBackground(ctx)
	if dir.typ != Directory {
		return 0, false, mderr.New(mderr.NotADirectory, "readdir")
	}

	if err := c.populateDirectory(ctx, dir); err != nil {
		return 0, false, err
	}

	dir.Content.RLock()
	start, serr := dir.dir.tree.Start(startCookie)
	if serr != nil {
		dir.Content.RUnlock()
		return 0, false, mderr.Wrap(mderr.BadCookie, serr, "readdir")
	}
	var snapshot []direntSnapshot
	for i := start; ; i++ {
		d, ok := dir.dir.tree.At(i)
		if !ok {
			eod = true
			break
		}
		snapshot = append(snapshot, direntSnapshot{name: d.Name, key: d.Child, cookie: d.HK.K})
	}
	dir.Content.RUnlock()

	var skipped bool
	for _, s := range snapshot {
		child, gerr := c.Get(ctx, s.key, CachedOnly)
		if gerr != nil {
			// The child aged out of the index: skip it and mark the
			// name map for invalidation.
			skipped = true
			continue
		}
		cont := cb(s.name, child, s.cookie)
		c.put(child)
		if !cont {
			eod = false
			break
		}
		nbFound++
	}

	if skipped {
		dir.Content.Lock()
		dir.clearFlag(flagTrustContent)
		dir.Content.Unlock()
	}
	return nbFound, eod, nil
}

// populateDirectory ensures dir's name map reflects the backend, calling
// Backend.Readdir once under Content.Lock if not already trusted.
func (c *Cache) populateDirectory(ctx context.Context, dir *Entry) error {
	dir.Content.RLock()
	if dir.trustContentPopulated() {
		dir.Content.RUnlock()
		return nil
	}
	dir.Content.RUnlock()

	dir.Content.Lock()
	defer dir.Content.Unlock()
	if dir.trustContentPopulated() {
		return nil
	}

	err := c.backend.Readdir(ctx, dir.handle, 0, func(name string, cookie uint64) bool {
		if _, ok := dir.dir.tree.Lookup(name); !ok {
			childKey, kerr := c.resolveChildKey(ctx, dir.handle, name)
			if kerr == nil {
				_, _ = dir.dir.tree.Insert(name, childKey)
			}
		}
		return true
	})
	if err != nil {
		if c.cfg.RetryReaddir {
			return mderr.Wrap(mderr.Delay, err, "readdir retry")
		}
		return translateErr(err)
	}

	dir.setFlag(flagTrustContent)
	dir.setFlag(flagDirPopulated)
	return nil
}

func (c *Cache) resolveChildKey(ctx context.Context, dirHandle Handle, name string) (fhkey.Key, error) {
	h, err := c.backend.Lookup(ctx, dirHandle, name)
	if err != nil {
		return fhkey.Key{}, err
	}
	kb, err := c.backend.HandleToKey(ctx, h)
	if err != nil {
		_ = c.backend.Release(ctx, h)
		return fhkey.Key{}, err
	}
	_ = c.backend.Release(ctx, h)
	return fhkey.New(c.backend.ID(), kb), nil
}

// Rdwr performs I/O against entry at offset, opening or reopening the
// backend descriptor in a compatible mode if needed.
func (c *Cache) Rdwr(ctx context.Context, entry *Entry, write bool, offset int64, buf []byte, sync bool) (n int, eof bool, err error) {
	ctx = ctxOrBackground(ctx)
	if entry.typ != RegularFile {
		return 0, false, mderr.New(mderr.BadType, "rdwr")
	}

	needed := OpenRead
	if write {
		needed = OpenWrite
	}
	if err := c.ensureOpen(ctx, entry, needed); err != nil {
		return 0, false, err
	}

	entry.Content.Lock()
	defer entry.Content.Unlock()

	if write {
		written, syncDone, werr := c.backend.Write(ctx, entry.handle, offset, buf, sync)
		if werr != nil {
			return 0, false, c.translateAndMaybeKill(ctx, entry, werr)
		}
		entry.Attr.Lock()
		entry.clearFlag(flagTrustAttrs)
		_ = c.refreshAttrsLocked(ctx, entry)
		entry.Attr.Unlock()
		if sync && !syncDone {
			_ = c.backend.Commit(ctx, entry.handle, offset, len(buf))
		}
		return written, false, nil
	}

	data, readEOF, rerr := c.backend.Read(ctx, entry.handle, offset, len(buf))
	if rerr != nil {
		return 0, false, c.translateAndMaybeKill(ctx, entry, rerr)
	}
	copy(buf, data)
	return len(data), readEOF, nil
}
