// Package task runs a function on a background goroutine with cooperative
// stop and a best-effort join, so a sweep can run while the caller keeps
// issuing commands.
package task

import (
	"context"
	"fmt"
	"time"
)

// Task is one running background function.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs fn on its own goroutine. The function receives a context
// cancelled by Stop.
func Start(fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		t.err = fn(ctx)
		close(t.done)
	}()
	return t
}

// Done is closed when the function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Running reports whether the function has not yet returned.
func (t *Task) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the function returns and reports its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Stop cancels the task's context and joins with a timeout. The join is
// best effort: on timeout the goroutine keeps running and Stop reports the
// failure to join, not the task's own error.
func (t *Task) Stop(timeout time.Duration) error {
	t.cancel()
	select {
	case <-t.done:
		return t.err
	case <-time.After(timeout):
		return fmt.Errorf("task did not stop within %v", timeout)
	}
}
