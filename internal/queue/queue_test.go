package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtrellis/jobtrellis/internal/task"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(t.TempDir(), "test", time.Second)
	require.NoError(t, err)
	return q
}

func TestAdd_RejectExisting(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("sum", nil, nil)

	_, err := q.Add([]*task.Task{tk}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	_, err = q.Add([]*task.Task{tk}, "mgr-1", RejectExisting)
	assert.ErrorIs(t, err, task.ErrTaskAlreadyExists)
}

func TestAdd_Upsert_OverwritesExisting(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("sum", nil, nil)

	_, err := q.Add([]*task.Task{tk}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	_, err = q.Add([]*task.Task{tk}, "mgr-2", Upsert)
	require.NoError(t, err)

	tasks, err := q.Tasks(Filter{ID: tk.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "mgr-2", tasks[0].ManagerID)
}

func TestAdd_MissingRequirement(t *testing.T) {
	q := openTestQueue(t)
	dependent := task.New("double", []task.Arg{task.RefArg("ghost")}, nil)

	_, err := q.Add([]*task.Task{dependent}, "mgr-1", RejectExisting)
	assert.ErrorIs(t, err, task.ErrDependencyNotFound)
}

func TestAdd_NoRequirements_StartsPending(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("sum", nil, nil)

	_, err := q.Add([]*task.Task{tk}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	tasks, err := q.Tasks(Filter{ID: tk.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StatePending, tasks[0].State)
}

func TestFinish_Success_CascadesWaitingToPending(t *testing.T) {
	q := openTestQueue(t)
	upstream := task.New("sum", nil, nil)
	downstream := task.New("double", []task.Arg{task.RefArg(upstream.ID)}, nil)

	_, err := q.Add([]*task.Task{upstream}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{downstream}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{})
	require.NoError(t, err)
	require.Equal(t, upstream.ID, popped.ID)

	require.NoError(t, q.Finish(popped, 0, []byte("42"), nil, nil))

	tasks, err := q.Tasks(Filter{ID: downstream.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StatePending, tasks[0].State)
}

func TestFinish_Failure_CascadesCancelledTransitively(t *testing.T) {
	q := openTestQueue(t)
	upstream := task.New("boom", nil, nil)
	middle := task.New("double", []task.Arg{task.RefArg(upstream.ID)}, nil)
	leaf := task.New("triple", []task.Arg{task.RefArg(middle.ID)}, nil)

	_, err := q.Add([]*task.Task{upstream}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{middle}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{leaf}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{})
	require.NoError(t, err)
	require.Equal(t, upstream.ID, popped.ID)

	require.NoError(t, q.Finish(popped, 1, nil, nil, []byte("boom")))

	tasks, err := q.Tasks(Filter{ID: middle.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateCancelled, tasks[0].State)

	tasks, err = q.Tasks(Filter{ID: leaf.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateCancelled, tasks[0].State, "cancellation must propagate transitively")
}

func TestFinish_DoesNotUnblockWaitingWithOtherPendingRequirement(t *testing.T) {
	q := openTestQueue(t)
	a := task.New("a", nil, nil)
	b := task.New("b", nil, nil)
	dependent := task.New("c", []task.Arg{task.RefArg(a.ID), task.RefArg(b.ID)}, nil)

	_, err := q.Add([]*task.Task{a, b}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{dependent}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{ID: a.ID})
	require.NoError(t, err)
	require.NotNil(t, popped)
	require.NoError(t, q.Finish(popped, 0, []byte("1"), nil, nil))

	tasks, err := q.Tasks(Filter{ID: dependent.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StateWaiting, tasks[0].State, "b is still PENDING, so c must remain WAITING")
}

func TestPop_FIFOWithinManager(t *testing.T) {
	q := openTestQueue(t)
	first := task.New("a", nil, nil)
	second := task.New("b", nil, nil)

	_, err := q.Add([]*task.Task{first}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{second}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, popped.ID)
}

func TestPop_ReturnsNilWhenPaused(t *testing.T) {
	q := openTestQueue(t)
	tk := task.New("a", nil, nil)
	_, err := q.Add([]*task.Task{tk}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	require.NoError(t, q.Pause())

	popped, err := q.Pop(Filter{})
	require.NoError(t, err)
	assert.Nil(t, popped)
}

func TestPop_ReturnsNilWhenEmpty(t *testing.T) {
	q := openTestQueue(t)
	popped, err := q.Pop(Filter{})
	require.NoError(t, err)
	assert.Nil(t, popped)
}

func TestPop_FiltersByManager(t *testing.T) {
	q := openTestQueue(t)
	a := task.New("a", nil, nil)
	b := task.New("b", nil, nil)
	_, err := q.Add([]*task.Task{a}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{b}, "mgr-2", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{ManagerID: "mgr-2"})
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, b.ID, popped.ID)
}

func TestPauseResume(t *testing.T) {
	q := openTestQueue(t)
	paused, err := q.Paused()
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, q.Pause())
	paused, err = q.Paused()
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, q.Resume())
	paused, err = q.Paused()
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestSummary_CountsByState(t *testing.T) {
	q := openTestQueue(t)
	a := task.New("a", nil, nil)
	b := task.New("b", nil, nil)
	_, err := q.Add([]*task.Task{a, b}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	summary, err := q.Summary("")
	require.NoError(t, err)
	assert.Equal(t, 2, summary[task.StatePending])
	assert.Equal(t, 0, summary[task.StateRunning])
}

func TestResolveArgs_SucceededDependency(t *testing.T) {
	q := openTestQueue(t)
	upstream := task.New("sum", nil, nil)
	downstream := task.New("double", []task.Arg{task.RefArg(upstream.ID)}, nil)

	_, err := q.Add([]*task.Task{upstream}, "mgr-1", RejectExisting)
	require.NoError(t, err)
	_, err = q.Add([]*task.Task{downstream}, "mgr-1", RejectExisting)
	require.NoError(t, err)

	popped, err := q.Pop(Filter{ID: upstream.ID})
	require.NoError(t, err)
	require.NoError(t, q.Finish(popped, 0, []byte("99"), nil, nil))

	tasks, err := q.Tasks(Filter{ID: downstream.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	args, _, err := q.ResolveArgs(tasks[0])
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("99")}, args)
}

func TestManagerPersistAndList(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.PutManager("mgr-1", []byte(`{"k":"v"}`)))

	data, ok, err := q.GetManager("mgr-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"k":"v"}`), data)

	ids, err := q.ManagerIDs()
	require.NoError(t, err)
	assert.Contains(t, ids, "mgr-1")
}

func TestDelete_RemovesQueue(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, "doomed", time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Delete(dir))

	_, err = Open(dir, "doomed", time.Second)
	require.NoError(t, err, "Delete should allow reopening a fresh queue at the same path")
}
