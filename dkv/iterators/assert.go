//go:build debug

package iterators

import "fmt"

// assertValid panics when a positional method is called on an invalid
// iterator. Only enabled with -tags debug.
func assertValid(method string, valid bool) {
	if !valid {
		panic(fmt.Sprintf("BUG: %s called on an invalid iterator", method))
	}
}
