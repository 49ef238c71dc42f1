// Package bg runs the database's background work.
package bg

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// AsyncGroup runs background tasks. Wait returns the first task error.
type AsyncGroup struct {
	eg      errgroup.Group
	pending atomic.Int64
}

func NewAsyncGroup() *AsyncGroup {
	return &AsyncGroup{}
}

// Enqueue runs fn after the tasks enqueued before it on the same queue have
// finished. Blocks while the queue already holds its limit of waiting tasks.
func (g *AsyncGroup) Enqueue(q *TaskQueue, fn func() error) {
	q.tasks <- fn
	g.pending.Add(1)
	g.eg.Go(func() error {
		defer g.pending.Add(-1)
		q.mu.Lock()
		defer q.mu.Unlock()
		return (<-q.tasks)()
	})
}

// Pending is the number of enqueued tasks that haven't finished.
func (g *AsyncGroup) Pending() int64 {
	return g.pending.Load()
}

func (g *AsyncGroup) Wait() error {
	return g.eg.Wait()
}

// TaskQueue orders the tasks enqueued on it. Each task starts once the one
// before it returns.
type TaskQueue struct {
	tasks chan func() error
	mu    sync.Mutex
}

func NewQueue(limit int) *TaskQueue {
	return &TaskQueue{tasks: make(chan func() error, limit)}
}
