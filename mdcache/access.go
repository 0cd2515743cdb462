// access.go provides the minimal permission-check primitive lookup needs:
// an execute-on-parent check before traversing into a directory. The full
// ACL/ownership model is export-configuration territory, out of scope
// here; this is the unix-permission-bits subset the core itself needs to
// decide whether to even attempt a lookup.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"context"

	"github.com/ganesha-go/mdcache/internal/mderr"
)

// Creds is the caller identity a request carries for permission checks.
type Creds struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

type credsCtxKey struct{}

// WithCreds attaches caller credentials to ctx for downstream permission
// checks. A context with no credentials attached is treated as trusted
// (e.g. the superuser-equivalent path a backend's own ACL would govern
// instead) — callers integrating a protocol layer that can supply real
// credentials should always call this.
func WithCreds(ctx context.Context, creds Creds) context.Context {
	return context.WithValue(ctx, credsCtxKey{}, creds)
}

func credsFromContext(ctx context.Context) (Creds, bool) {
	c, ok := ctx.Value(credsCtxKey{}).(Creds)
	return c, ok
}

const (
	modeOtherExec = 0o001
	modeGroupExec = 0o010
	modeOwnerExec = 0o100
)

// checkExecute reports whether creds (if present in ctx) are permitted to
// traverse dir — the "search" permission on a directory. Absent
// credentials always pass.
func checkExecute(ctx context.Context, attrs Attrs) error {
	creds, ok := credsFromContext(ctx)
	if !ok {
		return nil
	}
	if creds.UID == 0 {
		return nil
	}
	if attrs.UID == creds.UID && attrs.Mode&modeOwnerExec != 0 {
		return nil
	}
	if inGroups(creds, attrs.GID) && attrs.Mode&modeGroupExec != 0 {
		return nil
	}
	if attrs.Mode&modeOtherExec != 0 {
		return nil
	}
	return mderr.New(mderr.AccessDenied, "execute")
}

func inGroups(creds Creds, gid uint32) bool {
	if creds.GID == gid {
		return true
	}
	for _, g := range creds.Groups {
		if g == gid {
			return true
		}
	}
	return false
}
