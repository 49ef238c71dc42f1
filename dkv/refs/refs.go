// Reference counting utility.
//
// Concepts:
//   - When a function creates a struct, it returns it with a ref count of 1 and
//     the caller implicitly has ownership of the struct.
//   - The caller only needs to increment the reference if sharing the struct
//     with another owner (e.g. an open iterator reading a table).
//   - When a function borrows a struct it doesn't modify the reference count
//     and the caller retains ownership.
package refs

import (
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

type RefCount struct {
	count           atomic.Int64
	wasDereferenced atomic.Bool
	debugLabel      string
}

func NewRefCount() *RefCount {
	rc := &RefCount{}
	rc.Hold()
	return rc
}

// NewDebuggingRefCount logs every hold and drop with a stack trace.
func NewDebuggingRefCount(label string) *RefCount {
	rc := &RefCount{debugLabel: label}
	rc.Hold()
	return rc
}

func (rc *RefCount) Hold() (retained bool) {
	count := rc.count.Add(1)
	if rc.debugLabel != "" {
		slog.Debug("ref hold", "label", rc.debugLabel, "count", count, "stack", string(debug.Stack()))
	}
	if rc.wasDereferenced.Load() {
		panic("BUG: adding ref count to item that wasDereferenced")
	}
	return count == 1
}

func (rc *RefCount) Drop() (released bool) {
	result := rc.count.Add(-1)
	if rc.debugLabel != "" {
		slog.Debug("ref drop", "label", rc.debugLabel, "count", result, "stack", string(debug.Stack()))
	}
	if result < 0 {
		panic("BUG: ref count is below 0")
	}
	if result == 0 {
		rc.wasDereferenced.Store(true)
		return true
	}
	return false
}

// Count returns the current number of references.
func (rc *RefCount) Count() int64 {
	return rc.count.Load()
}

type DropRefer interface {
	DropRef() error
}

// Return a callback that binds the value of a struct. This avoids defer
// surprises where the binding changes after an inline function is declared.
func DropFunc(dr DropRefer) func() error {
	return func() error {
		return dr.DropRef()
	}
}
