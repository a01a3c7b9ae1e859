// Package spawner implements the loop that keeps worker capacity matched
// to PENDING demand per manager, asking each manager's provider to launch
// more workers when it is under capacity.
package spawner

import (
	"context"
	"time"

	"github.com/jobtrellis/jobtrellis/internal/backoff"
	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/manager"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
	"github.com/jobtrellis/jobtrellis/internal/provider"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

const pollInterval = 10 * time.Second

// WorkerCommand builds the command line a provider should launch for a
// given queue/manager pair, e.g. ["jobtrellis", "work", "--queue", name,
// "--manager", managerID, "--once"].
type WorkerCommand func(queueName, managerID string) []string

// Run polls queues until ctx is done or timeout elapses, asking each
// non-paused queue's managers to spawn workers up to their PENDING count.
func Run(ctx context.Context, queues []*queue.Queue, buildCommand WorkerCommand, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Time{}
	}

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		pollStart := time.Now()
		allPaused := true
		for _, q := range queues {
			paused, err := q.Paused()
			if err != nil {
				logger.Error().Err(err).Str("queue", q.Name).Msg("spawner: failed to read queue state")
				continue
			}
			if paused {
				continue
			}
			allPaused = false
			if err := spawnQueue(ctx, q, buildCommand); err != nil {
				logger.Error().Err(err).Str("queue", q.Name).Msg("spawner: failed to spawn workers")
			}
		}
		metrics.RecordSpawnerPoll(time.Since(pollStart).Seconds())
		if allPaused {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Jittered(pollInterval, 0.2)):
		}
	}
}

func spawnQueue(ctx context.Context, q *queue.Queue, buildCommand WorkerCommand) error {
	ids, err := q.ManagerIDs()
	if err != nil {
		return err
	}
	pending := task.StatePending
	for _, id := range ids {
		n, err := q.Counts(queue.Filter{ManagerID: id, State: &pending})
		if err != nil {
			logger.Error().Err(err).Str("manager", id).Msg("spawner: failed to count pending tasks")
			continue
		}
		if n == 0 {
			continue
		}
		// Config must come off disk before its Provider can be built, since
		// a live Provider isn't JSON-serializable; Load with a nil Provider
		// just to recover Config, then New the real manager around it.
		m, err := manager.Load(q, id, nil)
		if err != nil {
			logger.Error().Err(err).Str("manager", id).Msg("spawner: failed to load manager")
			continue
		}
		m = manager.New(m.Config, provider.New(m.Config.Provider))
		if err := m.Spawn(ctx, buildCommand(q.Ref().String(), id), n); err != nil {
			return err
		}
		metrics.RecordSpawnerLaunch(id, m.Config.Provider.Kind)
		metrics.SetActiveWorkers(id, float64(n))
	}
	return nil
}
