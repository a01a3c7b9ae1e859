package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

func newQueuesCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "queues",
		Short: "List matching queues and their state",
		Long: `queues lists every queue matching GLOB along with its paused flag and
per-state task counts. GLOB follows user/queue addressing: a bare name
selects that queue for the default user, and "*" globs over either the
user or the queue segment (e.g. "*/*" lists every queue of every user).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			refs, err := queue.Discover(cfg.Store.BaseDir, []string{pattern})
			if err != nil {
				return err
			}

			tw := newTabwriter()
			fmt.Fprintln(tw, "QUEUE\tPAUSED\tWAITING\tPENDING\tRUNNING\tSUCCEEDED\tFAILED\tKILLED\tCANCELLED")
			for _, ref := range refs {
				q, err := ref.Open(cfg.Store.BaseDir, cfg.Store.BusyTimeout, queue.MustExist)
				if err != nil {
					return fmt.Errorf("open queue %s: %w", ref, err)
				}
				paused, err := q.Paused()
				if err != nil {
					return err
				}
				summary, err := q.Summary("")
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%v\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
					ref, paused,
					summary[task.StateWaiting], summary[task.StatePending], summary[task.StateRunning],
					summary[task.StateSucceeded], summary[task.StateFailed], summary[task.StateKilled],
					summary[task.StateCancelled])
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&pattern, "queue", "q", "", "queue glob to match, e.g. \"*/*\" or \"user/*\" (required)")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}
