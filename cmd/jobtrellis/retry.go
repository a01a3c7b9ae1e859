package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

func newRetryCommand() *cobra.Command {
	var (
		queueNames []string
		taskID     string
		state      string
	)

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Move terminal tasks back to PENDING for a fresh run",
		Long: `retry moves tasks sitting in a terminal, non-CANCELLED state back to
PENDING so a worker picks them up again. Select a single task with --task,
or every task in a given terminal --state across the matched queues
(defaults to KILLED) to bulk-retry an entire batch. CANCELLED tasks are not
retryable: cascade cancellation reflects an upstream failure, not this
task's own outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(queueNames) == 0 {
				return errNoQueues
			}
			if state == "" {
				state = task.StateKilled.String()
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			queues, err := openMatching(cfg.Store.BaseDir, queueNames, cfg.Store.BusyTimeout)
			if err != nil {
				return err
			}

			s := task.ParseState(state)
			if taskID == "" && s != task.StateFailed && s != task.StateKilled && s != task.StateSucceeded && s != task.StateUnknown {
				return fmt.Errorf("--state %s is not a retryable terminal state", state)
			}

			retried := 0
			for _, q := range queues {
				f := queue.Filter{ID: taskID}
				if taskID == "" {
					f.State = &s
				}
				matched, err := q.Tasks(f)
				if err != nil {
					return err
				}
				for _, t := range matched {
					if !t.State.CanTransitionTo(task.StatePending) {
						logger.Warn().Str("task", t.ID).Str("state", t.State.String()).Msg("retry: skipping non-retryable task")
						continue
					}
					if err := q.SetTaskState(t.ID, task.StatePending); err != nil {
						return fmt.Errorf("retry task %s: %w", t.ID, err)
					}
					metrics.RecordTaskRetry(t.AppRef)
					retried++
				}
			}
			logger.Info().Int("count", retried).Msg("retry: requeued tasks")
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&queueNames, "queue", "q", nil, "queue name or glob to retry in (repeatable, required)")
	cmd.Flags().StringVar(&taskID, "task", "", "retry this specific task id")
	cmd.Flags().StringVar(&state, "state", "", "retry every task currently in this terminal state (default KILLED)")
	return cmd
}
