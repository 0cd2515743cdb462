package mdcache

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// fakeFSBackend is an in-memory, path-addressed filesystem used only to
// exercise Cache's high-level operations end to end. It is intentionally
// minimal: one flat map of nodes keyed by virtual path, standing in for a
// real filesystem-backed Backend.
type fakeFSBackend struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode
}

type fakeNode struct {
	mode     uint32
	data     []byte
	children map[string]string // name -> child path, directories only
}

type fakeHandle struct {
	path string
	desc DescStatus
}

const (
	modeDir  = 0o040755
	modeFile = 0o100644
	modeLnk  = 0o120777
)

func newFakeFSBackend() *fakeFSBackend {
	return &fakeFSBackend{
		nodes: map[string]*fakeNode{
			"/": {mode: modeDir, children: map[string]string{}},
		},
	}
}

func (b *fakeFSBackend) ID() uint16 { return 9 }

func (b *fakeFSBackend) CreateHandle(ctx context.Context, keyBytes []byte) (Handle, error) {
	return &fakeHandle{path: string(keyBytes)}, nil
}

func (b *fakeFSBackend) HandleToKey(ctx context.Context, h Handle) ([]byte, error) {
	return []byte(h.(*fakeHandle).path), nil
}

func (b *fakeFSBackend) Release(ctx context.Context, h Handle) error { return nil }

func (b *fakeFSBackend) Lookup(ctx context.Context, dir Handle, name string) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.nodes[dir.(*fakeHandle).path]
	if !ok {
		return nil, fmt.Errorf("fakefs: no such directory")
	}
	childPath, ok := d.children[name]
	if !ok {
		return nil, fmt.Errorf("fakefs: %s: no such entry", name)
	}
	return &fakeHandle{path: childPath}, nil
}

func (b *fakeFSBackend) Readdir(ctx context.Context, dir Handle, start uint64, cb ReaddirCallback) error {
	b.mu.Lock()
	d, ok := b.nodes[dir.(*fakeHandle).path]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("fakefs: no such directory")
	}
	names := make([]string, 0, len(d.children))
	for name := range d.children {
		names = append(names, name)
	}
	b.mu.Unlock()

	for i, name := range names {
		if !cb(name, uint64(i+3)) {
			break
		}
	}
	return nil
}

func (b *fakeFSBackend) Open(ctx context.Context, h Handle, flags OpenFlags) error {
	h.(*fakeHandle).desc = flagsToDescStatus(flags)
	return nil
}

func (b *fakeFSBackend) Reopen(ctx context.Context, h Handle, flags OpenFlags) error {
	h.(*fakeHandle).desc = flagsToDescStatus(flags)
	return nil
}

func (b *fakeFSBackend) Close(ctx context.Context, h Handle) error {
	h.(*fakeHandle).desc = DescClosed
	return nil
}

func (b *fakeFSBackend) Status(ctx context.Context, h Handle) (DescStatus, error) {
	return h.(*fakeHandle).desc, nil
}

func (b *fakeFSBackend) Read(ctx context.Context, h Handle, off int64, length int) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h.(*fakeHandle).path]
	if !ok {
		return nil, false, ErrNotOpen
	}
	if off >= int64(len(n.data)) {
		return nil, true, nil
	}
	end := off + int64(length)
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	return append([]byte(nil), n.data[off:end]...), end >= int64(len(n.data)), nil
}

func (b *fakeFSBackend) Write(ctx context.Context, h Handle, off int64, data []byte, sync bool) (int, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h.(*fakeHandle).path]
	if !ok {
		return 0, false, ErrNotOpen
	}
	end := off + int64(len(data))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:end], data)
	return len(data), sync, nil
}

func (b *fakeFSBackend) Commit(ctx context.Context, h Handle, off int64, length int) error { return nil }

func (b *fakeFSBackend) GetAttrs(ctx context.Context, h Handle) (Attrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h.(*fakeHandle).path]
	if !ok {
		return Attrs{}, fmt.Errorf("fakefs: stale handle")
	}
	return Attrs{Mode: n.mode, Size: uint64(len(n.data))}, nil
}

func (b *fakeFSBackend) SetAttrs(ctx context.Context, h Handle, attrs Attrs) (Attrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h.(*fakeHandle).path]
	if !ok {
		return Attrs{}, fmt.Errorf("fakefs: stale handle")
	}
	n.mode = attrs.Mode | (n.mode &^ 0o7777)
	return Attrs{Mode: n.mode, Size: uint64(len(n.data))}, nil
}

func (b *fakeFSBackend) Create(ctx context.Context, dir Handle, name string, mode uint32, arg any) (Handle, error) {
	return b.makeChild(dir, name, modeFile|(mode&0o7777), nil)
}

func (b *fakeFSBackend) Mkdir(ctx context.Context, dir Handle, name string, mode uint32) (Handle, error) {
	b.mu.Lock()
	dirPath := dir.(*fakeHandle).path
	d, ok := b.nodes[dirPath]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("fakefs: no such directory")
	}
	if _, exists := d.children[name]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("fakefs: %s: exists", name)
	}
	childPath := path.Join(dirPath, name)
	b.nodes[childPath] = &fakeNode{mode: modeDir | (mode & 0o7777), children: map[string]string{}}
	d.children[name] = childPath
	b.mu.Unlock()
	return &fakeHandle{path: childPath}, nil
}

func (b *fakeFSBackend) Symlink(ctx context.Context, dir Handle, name string, target string) (Handle, error) {
	return b.makeChild(dir, name, modeLnk, []byte(target))
}

func (b *fakeFSBackend) Mknod(ctx context.Context, dir Handle, name string, typ FileType, mode uint32, dev uint64) (Handle, error) {
	return b.makeChild(dir, name, mode, nil)
}

func (b *fakeFSBackend) makeChild(dir Handle, name string, mode uint32, data []byte) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dirPath := dir.(*fakeHandle).path
	d, ok := b.nodes[dirPath]
	if !ok {
		return nil, fmt.Errorf("fakefs: no such directory")
	}
	if _, exists := d.children[name]; exists {
		return nil, fmt.Errorf("fakefs: %s: exists", name)
	}
	childPath := path.Join(dirPath, name)
	b.nodes[childPath] = &fakeNode{mode: mode, data: data}
	d.children[name] = childPath
	return &fakeHandle{path: childPath}, nil
}

func (b *fakeFSBackend) Link(ctx context.Context, h Handle, dir Handle, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dirPath := dir.(*fakeHandle).path
	d, ok := b.nodes[dirPath]
	if !ok {
		return fmt.Errorf("fakefs: no such directory")
	}
	d.children[name] = h.(*fakeHandle).path
	return nil
}

func (b *fakeFSBackend) Unlink(ctx context.Context, dir Handle, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.nodes[dir.(*fakeHandle).path]
	if !ok {
		return fmt.Errorf("fakefs: no such directory")
	}
	childPath, ok := d.children[name]
	if !ok {
		return fmt.Errorf("fakefs: %s: no such entry", name)
	}
	delete(d.children, name)
	delete(b.nodes, childPath)
	return nil
}

func (b *fakeFSBackend) Rename(ctx context.Context, dir Handle, oldName string, newDir Handle, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	srcDir, ok := b.nodes[dir.(*fakeHandle).path]
	if !ok {
		return fmt.Errorf("fakefs: no such directory")
	}
	childPath, ok := srcDir.children[oldName]
	if !ok {
		return fmt.Errorf("fakefs: %s: no such entry", oldName)
	}
	dstDir, ok := b.nodes[newDir.(*fakeHandle).path]
	if !ok {
		return fmt.Errorf("fakefs: no such directory")
	}
	delete(srcDir.children, oldName)
	dstDir.children[newName] = childPath
	return nil
}

func (b *fakeFSBackend) Readlink(ctx context.Context, h Handle, refresh bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[h.(*fakeHandle).path]
	if !ok {
		return "", fmt.Errorf("fakefs: stale handle")
	}
	return string(n.data), nil
}
