package spawner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtrellis/jobtrellis/internal/manager"
	"github.com/jobtrellis/jobtrellis/internal/provider"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.Open(t.TempDir(), "test", time.Second)
	require.NoError(t, err)
	return q
}

func TestRun_StopsWhenAllQueuesPaused(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Pause())

	build := func(queueName, managerID string) []string { return []string{"jobtrellis", "work"} }

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Run(ctx, []*queue.Queue{q}, build, 0)
	assert.NoError(t, err)
}

func TestRun_StopsAtTimeout(t *testing.T) {
	q := openTestQueue(t)
	build := func(queueName, managerID string) []string { return []string{"jobtrellis", "work"} }

	// Run's deadline is only re-checked once per poll cycle, so a timeout
	// shorter than the poll interval still lets one full cycle complete
	// before returning; bound the test with a generous context deadline
	// rather than asserting on wall-clock speed.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := Run(ctx, []*queue.Queue{q}, build, 50*time.Millisecond)
	assert.NoError(t, err)
}

func TestRun_SpawnsForPendingManager(t *testing.T) {
	q := openTestQueue(t)
	mgr := manager.New(manager.Config{Scheduler: manager.SchedulerConfig{MaxWorkers: 1}}, provider.NewNull())
	tk := task.New("sum", nil, nil)
	_, err := mgr.Add(q, []*task.Task{tk}, queue.RejectExisting)
	require.NoError(t, err)

	var mu sync.Mutex
	var builtFor []string
	build := func(queueName, managerID string) []string {
		mu.Lock()
		builtFor = append(builtFor, managerID)
		mu.Unlock()
		return []string{"jobtrellis", "work", "--manager", managerID}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err = Run(ctx, []*queue.Queue{q}, build, 20*time.Millisecond)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, builtFor, mgr.ID)
}

func TestRun_ContextCancelled(t *testing.T) {
	q := openTestQueue(t)
	build := func(queueName, managerID string) []string { return []string{"jobtrellis", "work"} }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, []*queue.Queue{q}, build, 0)
	assert.Error(t, err)
}
