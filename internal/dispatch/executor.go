package dispatch

import "context"

// Executor decides where asynchronous handlers run.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) {
	f(task)
}

// Inline runs handlers on the goroutine that delivered the response, which
// for queued requests is a queue worker.
var Inline Executor = ExecutorFunc(func(task func()) { task() })

// Loop runs handlers one at a time on the goroutine that calls Run, like an
// event loop owned by the caller.
type Loop struct {
	tasks chan func()
}

// NewLoop creates a loop that buffers up to size pending tasks. Execute
// blocks while the buffer is full.
func NewLoop(size int) *Loop {
	return &Loop{tasks: make(chan func(), size)}
}

// Execute schedules task on the loop.
func (l *Loop) Execute(task func()) {
	l.tasks <- task
}

// Run executes tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			task()
		}
	}
}

// RunPending executes the tasks already scheduled and returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case task := <-l.tasks:
			task()
			n++
		default:
			return n
		}
	}
}
