// ops_mutate.go implements create, link, unlink, and rename: the
// backend mutation followed by the matching directory-substructure and
// cached-attribute update.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"

	"github.com/ganesha-go/mdcache/internal/fhkey"
	"github.com/ganesha-go/mdcache/internal/mderr"
)

// CreateArg bundles the backend-specific extra arguments a create call
// may need: a symlink target or device numbers.
type CreateArg struct {
	Target string // symlink target, when typ == Symlink
	Dev    uint64 // device number, when typ == CharDev/BlockDev
}

// Create makes a new object named name inside parent and installs it in
// the cache. The parent's in-creation counter is held for the duration,
// suppressing the negative-cache short-circuit in Lookup for other
// goroutines racing the same name.
func (c *Cache) Create(ctx context.Context, parent *Entry, name string, typ FileType, mode uint32, arg CreateArg) (*Entry, error) {
	ctx = ctxOrBackground(ctx)
	if parent.typ != Directory {
		return nil, mderr.New(mderr.NotADirectory, name)
	}

	parent.dir.inCreation.Add(1)
	defer parent.dir.inCreation.Add(-1)

	h, err := c.backendCreate(ctx, parent.handle, name, typ, mode, arg)
	if err != nil {
		return nil, translateErr(err)
	}
	keyBytes, err := c.backend.HandleToKey(ctx, h)
	if err != nil {
		_ = c.backend.Release(ctx, h)
		return nil, translateErr(err)
	}
	key := fhkey.New(c.backend.ID(), keyBytes)

	entry, err := c.installHandle(ctx, key, h)
	if err != nil {
		return nil, err
	}
	if err := c.lruM.RefInitial(entry.node); err != nil {
		return nil, mderr.New(mderr.Dead, "create race")
	}

	parent.Content.Lock()
	if parent.dir.tree != nil {
		_, _ = parent.dir.tree.Insert(name, entry.key)
	}
	parent.Content.Unlock()

	entry.parentKey = parent.key
	entry.hasParentKey = true

	c.refreshParentAttrs(ctx, parent)
	return entry, nil
}

func (c *Cache) backendCreate(ctx context.Context, dir Handle, name string, typ FileType, mode uint32, arg CreateArg) (Handle, error) {
	switch typ {
	case Directory:
		return c.backend.Mkdir(ctx, dir, name, mode)
	case Symlink:
		return c.backend.Symlink(ctx, dir, name, arg.Target)
	case CharDev, BlockDev, Fifo, Socket:
		return c.backend.Mknod(ctx, dir, name, typ, mode, arg.Dev)
	default:
		return c.backend.Create(ctx, dir, name, mode, arg)
	}
}

func (c *Cache) refreshParentAttrs(ctx context.Context, parent *Entry) {
	parent.Attr.Lock()
	parent.clearFlag(flagTrustAttrs)
	_ = c.refreshAttrsLocked(ctx, parent)
	parent.Attr.Unlock()
}

// Link adds a new hard link to entry named name inside dir.
func (c *Cache) Link(ctx context.Context, entry *Entry, dir *Entry, name string) error {
	ctx = ctxOrBackground(ctx)
	if dir.typ != Directory {
		return mderr.New(mderr.NotADirectory, name)
	}
	if err := c.backend.Link(ctx, entry.handle, dir.handle, name); err != nil {
		return translateErr(err)
	}

	dir.Content.Lock()
	if dir.dir.tree != nil {
		_, _ = dir.dir.tree.Insert(name, entry.key)
	}
	dir.Content.Unlock()

	c.refreshParentAttrs(ctx, dir)
	entry.Attr.Lock()
	entry.clearFlag(flagTrustAttrs)
	entry.Attr.Unlock()
	return nil
}

// Unlink removes name from dir. If the target is a regular file with an
// open descriptor and Config.CloseBeforeUnlink is set, the descriptor is
// closed first to avoid a later rename-on-close from the backend.
func (c *Cache) Unlink(ctx context.Context, dir *Entry, name string) error {
	ctx = ctxOrBackground(ctx)
	if dir.typ != Directory {
		return mderr.New(mderr.NotADirectory, name)
	}

	if c.cfg.CloseBeforeUnlink {
		if target, err := c.Lookup(ctx, dir, name); err == nil {
			c.closeIfOpen(ctx, target)
			c.put(target)
		}
	}

	if err := c.backend.Unlink(ctx, dir.handle, name); err != nil {
		return translateErr(err)
	}

	dir.Content.Lock()
	if dir.dir.tree != nil {
		_ = dir.dir.tree.Delete(name)
	}
	dir.Content.Unlock()

	c.refreshParentAttrs(ctx, dir)
	return nil
}

func (c *Cache) closeIfOpen(ctx context.Context, e *Entry) {
	if e.typ != RegularFile {
		return
	}
	e.Content.Lock()
	defer e.Content.Unlock()
	if e.file.desc == DescClosed {
		return
	}
	if err := c.backend.Close(ctx, e.handle); err == nil {
		e.file.desc = DescClosed
		c.openFDs.Add(-1)
	}
}

// Rename moves oldName inside oldDir to newName inside newDir.
func (c *Cache) Rename(ctx context.Context, oldDir *Entry, oldName string, newDir *Entry, newName string) error {
	ctx = ctxOrBackground(ctx)
	if oldDir.typ != Directory || newDir.typ != Directory {
		return mderr.New(mderr.NotADirectory, oldName)
	}

	if err := c.backend.Rename(ctx, oldDir.handle, oldName, newDir.handle, newName); err != nil {
		return translateErr(err)
	}

	if oldDir == newDir {
		oldDir.Content.Lock()
		if oldDir.dir.tree != nil {
			_, _ = oldDir.dir.tree.Rename(oldName, newName, true)
		}
		oldDir.Content.Unlock()
	} else {
		oldDir.Content.Lock()
		var moved fhkey.Key
		haveMoved := false
		if oldDir.dir.tree != nil {
			if d, ok := oldDir.dir.tree.Lookup(oldName); ok {
				moved = d.Child
				haveMoved = true
			}
			_ = oldDir.dir.tree.Delete(oldName)
		}
		oldDir.Content.Unlock()

		if haveMoved {
			newDir.Content.Lock()
			if newDir.dir.tree != nil {
				_, _ = newDir.dir.tree.Insert(newName, moved)
			}
			newDir.Content.Unlock()
		}
	}

	c.refreshParentAttrs(ctx, oldDir)
	if oldDir != newDir {
		c.refreshParentAttrs(ctx, newDir)
	}
	return nil
}
