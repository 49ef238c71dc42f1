//go:build !debug

package iterators

// assertValid is a no-op in production.
// Enable with -tags debug for runtime checks.
func assertValid(string, bool) {}
