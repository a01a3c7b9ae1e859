package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtrellis/jobtrellis/internal/apprunner"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir(), "test", time.Second)
	require.NoError(t, err)
	return q
}

func TestRunOnce_NoTaskAvailable(t *testing.T) {
	q := openTestQueue(t)
	w := New(q, apprunner.NewCatalog(), "", nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestRunOnce_Success(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("sum", []task.Arg{task.Lit([]byte("1")), task.Lit([]byte("2"))}, nil)
	_, err := q.Add([]*task.Task{tk}, "mgr-1", queue.RejectExisting)
	require.NoError(t, err)

	catalog := apprunner.NewCatalog()
	catalog.Register("sum", apprunner.NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		return []byte("3"), nil
	}))
	w := New(q, catalog, "mgr-1", nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ran)

	tasks, err := q.Tasks(queue.Filter{ID: tk.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateSucceeded, tasks[0].State)
	assert.Equal(t, []byte("3"), tasks[0].Result)
}

func TestRunOnce_AppNotFound_FinishesFailed(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("ghost-app", nil, nil)
	_, err := q.Add([]*task.Task{tk}, "mgr-1", queue.RejectExisting)
	require.NoError(t, err)

	w := New(q, apprunner.NewCatalog(), "", nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ran)

	tasks, err := q.Tasks(queue.Filter{ID: tk.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateFailed, tasks[0].State)
}

func TestRunOnce_AppError_FinishesFailed(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("boom", nil, nil)
	_, err := q.Add([]*task.Task{tk}, "mgr-1", queue.RejectExisting)
	require.NoError(t, err)

	catalog := apprunner.NewCatalog()
	catalog.Register("boom", apprunner.NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		return nil, errors.New("kaboom")
	}))
	w := New(q, catalog, "", nil)

	ran, err := w.RunOnce(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, ran)

	tasks, err := q.Tasks(queue.Filter{ID: tk.ID})
	require.NoError(t, err)
	assert.Equal(t, task.StateFailed, tasks[0].State)
}

func TestRun_LoopsUntilEmpty(t *testing.T) {
	q := openTestQueue(t)
	a := task.New("sum", []task.Arg{task.Lit([]byte("1"))}, nil)
	b := task.New("sum", []task.Arg{task.Lit([]byte("2"))}, nil)
	_, err := q.Add([]*task.Task{a, b}, "mgr-1", queue.RejectExisting)
	require.NoError(t, err)

	catalog := apprunner.NewCatalog()
	catalog.Register("sum", apprunner.NewFunctionRunner(func(args [][]byte, kwargs map[string][]byte, environ map[string]string) ([]byte, error) {
		return []byte("ok"), nil
	}))
	w := New(q, catalog, "mgr-1", nil)

	require.NoError(t, w.Run(context.Background()))

	summary, err := q.Summary("mgr-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary[task.StateSucceeded])
}
