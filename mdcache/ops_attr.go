// ops_attr.go implements setattr, open/close, and invalidate: attribute
// mutation, open-mode-compatibility tracking, and descriptor-refcount
// bookkeeping for a regular file's backend descriptor.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"

	"github.com/ganesha-go/mdcache/internal/mderr"
)

// Setattr applies attrs to entry and returns the backend's resulting
// attribute set.
func (c *Cache) Setattr(ctx context.Context, entry *Entry, attrs Attrs) (Attrs, error) {
	ctx = ctxOrBackground(ctx)

	entry.Attr.Lock()
	defer entry.Attr.Unlock()

	if creds, ok := credsFromContext(ctx); ok && creds.UID != 0 && creds.UID != entry.attrs.UID {
		return Attrs{}, mderr.New(mderr.PermissionDenied, "setattr")
	}

	out, err := c.backend.SetAttrs(ctx, entry.handle, attrs)
	if err != nil {
		return Attrs{}, c.translateAndMaybeKill(ctx, entry, err)
	}
	if out.Change == entry.attrs.Change {
		// Backend didn't bump the change counter itself; the cache must,
		// so other trust-refresh checks still observe forward progress.
		out.Change++
	}
	entry.attrs = out
	entry.expiry = c.deadline()
	entry.setFlag(flagTrustAttrs)
	return out, nil
}

// ensureOpen guarantees entry has a backend descriptor open in at least
// the mode `needed`, opening or reopening as required. Caller must not
// hold entry.Content.
func (c *Cache) ensureOpen(ctx context.Context, entry *Entry, needed OpenFlags) error {
	entry.Content.Lock()
	defer entry.Content.Unlock()
	return c.ensureOpenLocked(ctx, entry, needed)
}

func (c *Cache) ensureOpenLocked(ctx context.Context, entry *Entry, needed OpenFlags) error {
	have := descStatusFlags(entry.file.desc)
	if have&needed == needed {
		return nil
	}

	combined := have | needed
	var err error
	if entry.file.desc == DescClosed {
		err = c.backend.Open(ctx, entry.handle, combined)
	} else {
		err = c.backend.Reopen(ctx, entry.handle, combined)
	}
	if err != nil {
		return c.translateAndMaybeKill(ctx, entry, err)
	}
	wasOpen := entry.file.desc != DescClosed
	entry.file.desc = flagsToDescStatus(combined)
	if !wasOpen {
		c.openFDs.Add(1)
	}
	return nil
}

func descStatusFlags(s DescStatus) OpenFlags {
	switch s {
	case DescRead:
		return OpenRead
	case DescWrite:
		return OpenWrite
	case DescReadWrite:
		return OpenRead | OpenWrite
	default:
		return 0
	}
}

func flagsToDescStatus(f OpenFlags) DescStatus {
	switch {
	case f&OpenRead != 0 && f&OpenWrite != 0:
		return DescReadWrite
	case f&OpenWrite != 0:
		return DescWrite
	case f&OpenRead != 0:
		return DescRead
	default:
		return DescClosed
	}
}

// Open opens entry's backend descriptor in the given mode, incrementing
// its open-mode refcounts. The descriptor is kept open (subject to the
// reclaimer) until a matching Close drops the last reference.
func (c *Cache) Open(ctx context.Context, entry *Entry, flags OpenFlags) error {
	ctx = ctxOrBackground(ctx)
	if entry.typ != RegularFile {
		return mderr.New(mderr.BadType, "open")
	}

	entry.Content.Lock()
	defer entry.Content.Unlock()
	if err := c.ensureOpenLocked(ctx, entry, flags); err != nil {
		return err
	}
	if flags&OpenRead != 0 {
		entry.file.openReadN++
	}
	if flags&OpenWrite != 0 {
		entry.file.openWriteN++
	}
	return nil
}

// Close releases one reference on entry's open mode(s). reallyClose forces
// the backend descriptor shut even if the cache would otherwise keep it
// warm for reuse; closing an entry that is not really open is a no-op,
// not an error.
func (c *Cache) Close(ctx context.Context, entry *Entry, flags OpenFlags, reallyClose bool) error {
	ctx = ctxOrBackground(ctx)
	if entry.typ != RegularFile {
		return nil
	}

	entry.Content.Lock()
	defer entry.Content.Unlock()

	if flags&OpenRead != 0 && entry.file.openReadN > 0 {
		entry.file.openReadN--
	}
	if flags&OpenWrite != 0 && entry.file.openWriteN > 0 {
		entry.file.openWriteN--
	}

	if entry.file.desc == DescClosed {
		return nil
	}
	stillWanted := entry.file.openReadN > 0 || entry.file.openWriteN > 0
	if stillWanted && !reallyClose {
		return nil
	}
	if !reallyClose && c.cachingFDs.Load() {
		// The reclaimer may keep this descriptor warm for reuse; leave
		// it open until a demotion pass (or an explicit reallyClose)
		// closes it.
		return nil
	}

	if err := c.backend.Close(ctx, entry.handle); err != nil {
		return c.translateAndMaybeKill(ctx, entry, err)
	}
	entry.file.desc = DescClosed
	c.openFDs.Add(-1)
	return nil
}

// Invalidate clears the requested trust bits on entry, optionally closing
// its backend descriptor. This is the synchronous counterpart to
// UpcallInvalidate for callers already holding a reference.
func (c *Cache) Invalidate(ctx context.Context, entry *Entry, which InvalidateWhich, closeDesc bool) {
	ctx = ctxOrBackground(ctx)
	if which&InvalidateAttrs != 0 {
		entry.Attr.Lock()
		entry.clearFlag(flagTrustAttrs)
		entry.Attr.Unlock()
	}
	if which&InvalidateContent != 0 {
		entry.Content.Lock()
		entry.clearFlag(flagTrustContent)
		entry.clearFlag(flagDirPopulated)
		entry.Content.Unlock()
	}
	if closeDesc {
		c.closeIfOpen(ctx, entry)
	}
}
