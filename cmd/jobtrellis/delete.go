package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/queue"
)

func newDeleteCommand() *cobra.Command {
	var (
		queueNames []string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove one or more queues and all of their tasks from disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(queueNames) == 0 {
				return errNoQueues
			}
			if !force {
				return fmt.Errorf("refusing to delete queues %v without --force", queueNames)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			refs, err := queue.Discover(cfg.Store.BaseDir, queueNames)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				q, err := ref.Open(cfg.Store.BaseDir, cfg.Store.BusyTimeout, queue.MustExist)
				if err != nil {
					return fmt.Errorf("open queue %s: %w", ref, err)
				}
				if err := q.Delete(ref.Dir(cfg.Store.BaseDir)); err != nil {
					return fmt.Errorf("delete queue %s: %w", ref, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&queueNames, "queue", "q", nil, "queue name or glob to delete (repeatable, required)")
	cmd.Flags().BoolVar(&force, "force", false, "confirm permanent deletion")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}
