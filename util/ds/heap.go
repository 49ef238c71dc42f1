// Package ds provides small data structures shared by the storage packages.
//
// Heap started from https://github.com/zyedidia/generic/blob/master/heap/heap.go at 98022f9
package ds

// Heap implements a binary min-heap.
type Heap[T any] struct {
	data    []T
	compare CompareFn[T]
}

// CompareFn is a function that returns:
//   - negative value if a < b
//   - zero if a == b
//   - positive value if a > b
type CompareFn[T any] func(a, b T) int

// NewHeap returns a new heap with the given compare function.
func NewHeap[T any](compare CompareFn[T], cap int) *Heap[T] {
	return &Heap[T]{
		data:    make([]T, 0, cap),
		compare: compare,
	}
}

// Push pushes the given element onto the heap.
func (h *Heap[T]) Push(x T) {
	h.data = append(h.data, x)
	h.up(len(h.data) - 1)
}

// Pop removes and returns the minimum element from the heap.
func (h *Heap[T]) Pop() (T, bool) {
	var x T
	if h.IsEmpty() {
		return x, false
	}

	x = h.data[0]
	n := len(h.data) - 1
	h.data[0] = h.data[n]
	h.data = h.data[:n]
	if n > 0 {
		h.down(0)
	}
	return x, true
}

// Peek returns the minimum element from the heap without removing it. if the
// heap is empty, it returns zero value and false.
func (h *Heap[T]) Peek() (T, bool) {
	if h.Size() == 0 {
		var x T
		return x, false
	}

	return h.data[0], true
}

// ReplaceTop swaps x in for the minimum element and restores heap order,
// returning the element that was replaced. It is a Pop followed by a Push
// without growing or shrinking the heap. Panics on an empty heap.
func (h *Heap[T]) ReplaceTop(x T) T {
	if h.IsEmpty() {
		panic("BUG: ReplaceTop on empty heap")
	}
	top := h.data[0]
	h.data[0] = x
	h.down(0)
	return top
}

// FixTop restores heap order after the minimum element's ordering value was
// changed in place. Elements can only move down from the root.
func (h *Heap[T]) FixTop() {
	if h.IsEmpty() {
		return
	}
	h.down(0)
}

// Size returns the number of elements in the heap.
func (h *Heap[T]) Size() int {
	return len(h.data)
}

func (h *Heap[T]) IsEmpty() bool {
	return h.Size() == 0
}

// All returns the elements in heap order (not sorted order).
func (h *Heap[T]) All() []T {
	return h.data
}

func (h *Heap[T]) down(i int) bool {
	i0 := i
	for {
		left, right := 2*i+1, 2*i+2
		if left >= len(h.data) || left < 0 { // `left < 0` in case of overflow
			break
		}

		// find the smallest child
		j := left
		if right < len(h.data) && h.compare(h.data[right], h.data[left]) < 0 {
			j = right
		}

		if h.compare(h.data[j], h.data[i]) >= 0 {
			break
		}

		h.data[i], h.data[j] = h.data[j], h.data[i]
		i = j
	}
	return i > i0 // did move
}

func (h *Heap[T]) up(i int) {
	for {
		parent := (i - 1) / 2
		if i == 0 || h.compare(h.data[i], h.data[parent]) >= 0 {
			break
		}

		h.data[i], h.data[parent] = h.data[parent], h.data[i]
		i = parent
	}
}
