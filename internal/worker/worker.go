// Package worker implements the pop -> resolve -> run -> write-back loop
// that drives task execution against a queue.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jobtrellis/jobtrellis/internal/apprunner"
	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

var ErrAppNotFound = errors.New("worker: app not registered in catalog")

// Worker repeatedly pops a task from its queue, resolves arguments, runs
// the registered app, and writes the outcome back. It processes tasks
// strictly one at a time: in-process app execution is not safe to
// parallelize within a single worker.
type Worker struct {
	Queue     *queue.Queue
	Catalog   *apprunner.Catalog
	ManagerID string
	Environ   map[string]string
}

// New builds a Worker bound to q, filtering pops to managerID (empty
// string pops across all managers).
func New(q *queue.Queue, catalog *apprunner.Catalog, managerID string, environ map[string]string) *Worker {
	return &Worker{Queue: q, Catalog: catalog, ManagerID: managerID, Environ: environ}
}

// RunOnce pops a single matching task (optionally a specific taskID),
// executes it, and writes its outcome back. It returns (false, nil) when
// there was no eligible task to pop, which the caller uses to stop looping.
func (w *Worker) RunOnce(ctx context.Context, taskID string) (ran bool, err error) {
	t, err := w.Queue.Pop(queue.Filter{ManagerID: w.ManagerID, ID: taskID})
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}

	log := logger.WithTask(t.ID)
	log.Info().Str("app", t.AppRef).Msg("worker picked up task")

	args, kwargs, resolveErr := w.Queue.ResolveArgs(t)
	if resolveErr != nil {
		log.Error().Err(resolveErr).Msg("failed to resolve task arguments")
		return true, w.Queue.SetTaskState(t.ID, task.StateFailed)
	}

	runner, ok := w.Catalog.Lookup(t.AppRef)
	if !ok {
		log.Error().Str("app", t.AppRef).Msg("app not found in catalog")
		if finErr := w.Queue.Finish(t, 1, nil, nil, []byte(ErrAppNotFound.Error())); finErr != nil {
			return true, finErr
		}
		return true, nil
	}

	start := time.Now()
	errno, result, stdout, stderr, runErr := runner.Run(ctx, args, kwargs, w.Environ)
	dur := time.Since(start)
	metrics.RecordWorkerBusyTime(w.ManagerID, dur.Seconds())

	if runErr != nil {
		log.Error().Err(runErr).Dur("duration", dur).Msg("app run returned a host error")
		return true, w.Queue.Finish(t, 1, nil, stdout, []byte(runErr.Error()))
	}

	log.Info().Int("errno", errno).Dur("duration", dur).Msg("task finished")
	return true, w.Queue.Finish(t, errno, result, stdout, stderr)
}

// Run loops RunOnce until the queue has nothing left for this worker to
// pop, or ctx is done, running tasks one after another. The CLI's `work`
// subcommand uses Run by default and a single RunOnce with --once or
// --task; the spawner launches workers with --once, matching one
// batch-scheduler task slot to one worker process.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ran, err := w.RunOnce(ctx, "")
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}
