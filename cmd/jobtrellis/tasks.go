package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

func newTasksCommand() *cobra.Command {
	var (
		queueName string
		state     string
		managerID string
		taskID    string
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks in a queue, optionally filtered by state or manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			if queueName == "" {
				return fmt.Errorf("--queue is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			q, err := openSingle(cfg.Store.BaseDir, queueName, cfg.Store.BusyTimeout)
			if err != nil {
				return err
			}

			if state == "" {
				state = task.StateFailed.String()
			}
			f := queue.Filter{ID: taskID, ManagerID: managerID}
			s := task.ParseState(state)
			f.State = &s
			matched, err := q.Tasks(f)
			if err != nil {
				return err
			}

			tw := newTabwriter()
			fmt.Fprintln(tw, "ID\tAPP\tSTATE\tMANAGER\tERRNO")
			for _, t := range matched {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", t.ID, t.AppRef, t.State, t.ManagerID, t.Errno)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "queue name (required, single queue only)")
	cmd.Flags().StringVar(&state, "state", "", "filter by state (WAITING, PENDING, RUNNING, SUCCEEDED, FAILED, KILLED, CANCELLED); defaults to FAILED")
	cmd.Flags().StringVar(&managerID, "manager", "", "filter by manager id")
	cmd.Flags().StringVar(&taskID, "task", "", "show only this task id")
	return cmd
}
