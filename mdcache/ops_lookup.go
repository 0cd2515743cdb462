// ops_lookup.go implements lookup and lookupp: a directory-probe then
// backend-lookup-and-install path, plus lookupp's export-root special
// case.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"

	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/mderr"
)

// Lookup resolves name within parent, consulting the cached directory
// content before falling back to the backend. The caller owns the
// returned reference.
func (c *Cache) Lookup(ctx context.Context, parent *Entry, name string) (*Entry, error) {
	ctx = ctxOrBackground(ctx)
	if parent.typ != Directory {
		return nil, mderr.New(mderr.NotADirectory, name)
	}

	if err := c.lockTrustAttrs(ctx, parent, lockShared); err != nil {
		return nil, err
	}
	attrsSnapshot := parent.attrs
	parent.Attr.RUnlock()
	if err := checkExecute(ctx, attrsSnapshot); err != nil {
		return nil, err
	}

	parent.Content.RLock()
	populated := parent.trustContentPopulated()
	var childKey fhkey.Key
	haveChildKey := false
	if populated {
		if d, ok := parent.dir.tree.Lookup(name); ok {
			childKey = d.Child
			haveChildKey = true
		}
	}
	// A Create in flight in this directory may be about to add name, so
	// the negative-cache short-circuit is skipped while one is running.
	creating := parent.dir.inCreation.Load() != 0
	parent.Content.RUnlock()

	if populated && !haveChildKey && !creating {
		c.metrics.incMiss()
		return nil, mderr.New(mderr.NotFound, name)
	}

	if haveChildKey {
		entry, err := c.Get(ctx, childKey, CachedOnly)
		if err == nil {
			c.metrics.incHit()
			return entry, nil
		}
		// Cached dirent's weak reference is stale (the entry aged out of
		// the index); fall through to a fresh backend lookup below.
	}

	h, err := c.backend.Lookup(ctx, parent.handle, name)
	if err != nil {
		return nil, translateErr(err)
	}
	keyBytes, err := c.backend.HandleToKey(ctx, h)
	if err != nil {
		_ = c.backend.Release(ctx, h)
		return nil, translateErr(err)
	}
	childFhKey := fhkey.New(c.backend.ID(), keyBytes)

	entry, err := c.installHandle(ctx, childFhKey, h)
	if err != nil {
		return nil, err
	}
	if err := c.lruM.RefInitial(entry.node); err != nil {
		return nil, mderr.New(mderr.Dead, "lookup race")
	}

	parent.Content.Lock()
	if parent.typ == Directory && parent.dir.tree != nil {
		_, _ = parent.dir.tree.Insert(name, entry.key)
	}
	parent.Content.Unlock()

	entry.parentKey = parent.key
	entry.hasParentKey = true

	return entry, nil
}

// Lookupp resolves entry's parent directory. Export roots return
// themselves; otherwise the cached parent key is resolved through the
// index/backend exactly like Get.
func (c *Cache) Lookupp(ctx context.Context, entry *Entry) (*Entry, error) {
	ctx = ctxOrBackground(ctx)
	if entry.isExportRoot {
		if err := c.lruM.RefInitial(entry.node); err != nil {
			return nil, mderr.New(mderr.Dead, "lookupp")
		}
		return entry, nil
	}
	if !entry.hasParentKey {
		return nil, mderr.New(mderr.NotFound, "no cached parent")
	}
	return c.Get(ctx, entry.parentKey, GetOrCreate)
}
