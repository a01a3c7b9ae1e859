package main

import (
	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/queue"
)

func newPauseCommand() *cobra.Command {
	var queueNames []string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Stop one or more queues from handing out new work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(queueNames, func(q *queue.Queue) error {
				return q.Pause()
			})
		},
	}
	cmd.Flags().StringArrayVarP(&queueNames, "queue", "q", nil, "queue name or glob to pause (repeatable, required)")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

func newResumeCommand() *cobra.Command {
	var queueNames []string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Re-enable one or more paused queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(queueNames, func(q *queue.Queue) error {
				return q.Resume()
			})
		},
	}
	cmd.Flags().StringArrayVarP(&queueNames, "queue", "q", nil, "queue name or glob to resume (repeatable, required)")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

// withQueues resolves queueNames (each optionally globbed) under the
// configured store directory and runs fn against every match.
func withQueues(queueNames []string, fn func(q *queue.Queue) error) error {
	if len(queueNames) == 0 {
		return errNoQueues
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	queues, err := openMatching(cfg.Store.BaseDir, queueNames, cfg.Store.BusyTimeout)
	if err != nil {
		return err
	}
	for _, q := range queues {
		if err := fn(q); err != nil {
			return err
		}
	}
	return nil
}
