package meshfilter

import (
	"fmt"
	"sync"
)

// JobState describes where a job is in its lifecycle.
//
// State machine:
//
//	Pending -> Running -> Completed
//	Pending -> Cancelled
//
// A job can only be cancelled while it is still queued. Once it starts
// running it always reaches Completed; there is no way to interrupt a
// running job.
type JobState int32

const (
	// JobPending means the job is queued and has not started.
	JobPending JobState = iota

	// JobRunning means the worker is currently executing the job.
	JobRunning

	// JobCompleted means the job finished and its result is available.
	JobCompleted

	// JobCancelled means the job was dropped from the queue without
	// running, because the filter shut down first.
	JobCancelled
)

// String returns the state name.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobRunning:
		return "Running"
	case JobCompleted:
		return "Completed"
	case JobCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("JobState(%d)", int32(s))
	}
}

// Job is one unit of deferred work executed on the filter's worker
// goroutine. Callers hold a Job to observe its completion; the queue
// holds it to execute or cancel it.
type Job interface {
	// Wait blocks until the job has completed or been cancelled.
	Wait()

	// State returns the job's current state.
	State() JobState

	// Err returns ErrCancelled if the job was cancelled, nil otherwise.
	// It is meaningful after Wait has returned.
	Err() error

	execute()
	cancel()
}

// task is the one Job implementation: a payload returning a value of
// type T, with a completion channel as the per-job synchronization
// primitive.
type task[T any] struct {
	mu     sync.Mutex
	state  JobState
	fn     func() T
	result T
	done   chan struct{}
}

// newTask creates a pending task around fn.
func newTask[T any](fn func() T) *task[T] {
	return &task[T]{fn: fn, done: make(chan struct{})}
}

// execute runs the payload on the calling goroutine (the worker) and
// signals completion. A task that was cancelled while queued is a
// no-op here.
func (t *task[T]) execute() {
	t.mu.Lock()
	if t.state != JobPending {
		t.mu.Unlock()
		return
	}
	t.state = JobRunning
	t.mu.Unlock()

	result := t.fn()

	t.mu.Lock()
	t.result = result
	t.state = JobCompleted
	t.mu.Unlock()
	close(t.done)
}

// cancel transitions a still-pending task to Cancelled and wakes its
// waiters. Cancelling a running or finished task is a no-op.
func (t *task[T]) cancel() {
	t.mu.Lock()
	if t.state != JobPending {
		t.mu.Unlock()
		return
	}
	t.state = JobCancelled
	t.mu.Unlock()
	close(t.done)
}

// Wait blocks until the task has completed or been cancelled.
func (t *task[T]) Wait() {
	<-t.done
}

// State returns the task's current state.
func (t *task[T]) State() JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns ErrCancelled for cancelled tasks, nil otherwise.
func (t *task[T]) Err() error {
	if t.State() == JobCancelled {
		return ErrCancelled
	}
	return nil
}

// Result returns the payload's return value. Valid once Wait has
// returned without error.
func (t *task[T]) Result() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// submit queues fn on the filter's worker, blocks until it has run and
// returns its result. It distinguishes the three outcomes a caller
// must treat differently: completed (result, nil), cancelled during
// shutdown (ErrCancelled) and submitted after shutdown (ErrClosed).
func submit[T any](f *MeshFilter, fn func() T) (T, error) {
	j := newTask(fn)
	if !f.addJob(j) {
		var zero T
		return zero, ErrClosed
	}
	j.Wait()
	if err := j.Err(); err != nil {
		var zero T
		return zero, err
	}
	return j.Result(), nil
}
