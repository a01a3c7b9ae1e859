package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jobtrellis/jobtrellis/internal/backoff"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

// Future is a client-side handle to a task submitted through Add. It polls
// the queue for a terminal state, mirroring the source system's
// Future.result, which also polls the database rather than blocking on a
// notification primitive. A filesystem or local-socket push channel would
// shorten the common-case latency but is not required for correctness.
type Future struct {
	queue *Queue
	id    string

	resolved bool
	result   []byte
	state    task.State
}

// ID returns the task ID this future tracks.
func (f *Future) ID() string { return f.id }

const pollInterval = 200 * time.Millisecond

// Result blocks (by polling) until the task reaches a terminal state or ctx
// is done, returning its result bytes and final state. A previously
// resolved Future returns immediately from its cached outcome.
func (f *Future) Result(ctx context.Context) ([]byte, task.State, error) {
	if f.resolved {
		return f.result, f.state, nil
	}
	for {
		tasks, err := f.queue.Tasks(Filter{ID: f.id})
		if err != nil {
			return nil, task.StateUnknown, err
		}
		if len(tasks) == 0 {
			return nil, task.StateUnknown, fmt.Errorf("queue: future: %w", task.ErrTaskNotFound)
		}
		t := tasks[0]
		if t.State.IsFinal() {
			f.resolved = true
			f.result = t.Result
			f.state = t.State
			return f.result, f.state, nil
		}

		select {
		case <-ctx.Done():
			return nil, task.StateUnknown, ctx.Err()
		case <-time.After(backoff.Jittered(pollInterval, 0.2)):
		}
	}
}
