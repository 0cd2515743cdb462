package mdcache

import (
	"context"
	"testing"
	"time"

	"github.com/ganesha-go/mdcache/internal/fhkey"
)

func TestApplyUpcallClearsRequestedTrustBits(t *testing.T) {
	c, _, root := newTestCache(t)
	e, err := c.Create(context.Background(), root, "applyme", RegularFile, 0o644, CreateArg{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer c.Put(e)

	c.applyUpcall(upcallRequest{key: e.key, which: InvalidateAttrs})

	e.Attr.RLock()
	trusted := e.hasFlag(flagTrustAttrs)
	e.Attr.RUnlock()
	if trusted {
		t.Fatal("applyUpcall(InvalidateAttrs) should clear flagTrustAttrs")
	}
}

func TestApplyUpcallUnknownKeyIsNoop(t *testing.T) {
	c, _, _ := newTestCache(t)
	// Must not panic when the key has no cached entry.
	c.applyUpcall(upcallRequest{key: fhkey.New(9, []byte("/nowhere")), which: InvalidateAll})
}

func TestUpcallInvalidateIgnoredAfterShutdown(t *testing.T) {
	backend := newFakeFSBackend()
	c, err := New(backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	root, err := c.Get(context.Background(), fhkey.New(backend.ID(), []byte("/")), GetOrCreate)
	if err != nil {
		t.Fatalf("Get(root): %v", err)
	}
	e, err := c.Create(context.Background(), root, "x", RegularFile, 0o644, CreateArg{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Put(e)
	c.Put(root)

	c.Shutdown(time.Second)

	// Must not block or panic: the queue send is skipped once c.shutdown is set.
	c.UpcallInvalidate(e.key, InvalidateAll)
}

func TestUpcallInvalidateEndToEnd(t *testing.T) {
	c, backend, _ := newTestCache(t)
	_, err := backend.Create(context.Background(), &fakeHandle{path: "/"}, "e2e", 0o644, nil)
	if err != nil {
		t.Fatalf("backend.Create: %v", err)
	}
	key := fhkey.New(backend.ID(), []byte("/e2e"))
	e, err := c.Get(context.Background(), key, GetOrCreate)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer c.Put(e)

	c.UpcallInvalidate(key, InvalidateAttrs)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		e.Attr.RLock()
		trusted := e.hasFlag(flagTrustAttrs)
		e.Attr.RUnlock()
		if !trusted {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("UpcallInvalidate did not propagate through upcallLoop within the deadline")
}
