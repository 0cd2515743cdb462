// errors.go translates backend errors onto the internal/mderr taxonomy. A
// Backend implementation is expected to return *mderr.Error values
// directly for conditions the cache must act on (notably mderr.Stale); any
// other error is folded to mderr.IO so callers always get a taxonomy code.
//
// © 2025 mdcache authors. MIT License.
package mdcache

import (
	"errors"

	"github.com/ganesha-go/mdcache/internal/mderr"
)

// ErrNotOpen is returned by a Backend implementation's Read/Write/Commit
// when asked to operate on a handle that has no descriptor open. Backends
// are free to return it directly; the cache folds it to mderr.IO like any
// other non-taxonomy error.
var ErrNotOpen = errors.New("mdcache: handle not open")

// translateBackendError normalizes err onto the taxonomy, returning the
// matched code and an error value guaranteed to satisfy
// errors.As(_, *mderr.Error).
func translateBackendError(err error) (mderr.Code, error) {
	if err == nil {
		return 0, nil
	}
	if code, ok := mderr.CodeOf(err); ok {
		return code, err
	}
	return mderr.IO, mderr.Wrap(mderr.IO, err, "backend")
}
