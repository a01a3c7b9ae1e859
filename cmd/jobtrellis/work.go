package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/apprunner"
	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/worker"
)

func newWorkCommand() *cobra.Command {
	var (
		queueName string
		managerID string
		taskID    string
		apps      []string
		once      bool
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a worker against a queue, executing one task at a time",
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

			catalog, err := buildCatalog(apps)
			if err != nil {
				return err
			}

			w := worker.New(q, catalog, managerID, nil)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logger.WithQueue(queueName)
			if once || taskID != "" {
				ran, err := w.RunOnce(ctx, taskID)
				if err != nil {
					return err
				}
				if !ran {
					log.Info().Msg("work: no task available")
				}
				return nil
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "queue name, optionally user/queue (required, single queue only)")
	cmd.Flags().StringVar(&managerID, "manager", "", "restrict work to this manager id (tmid)")
	cmd.Flags().StringVar(&taskID, "task", "", "run this specific task id, then exit (implies --once)")
	cmd.Flags().StringArrayVar(&apps, "app", nil, "register a shell app as name=command (repeatable)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single task and exit instead of looping")
	return cmd
}

// buildCatalog registers one ShellRunner per --app name=command flag. Each
// command's words become the base argv; a task's resolved args are
// appended as extra argv entries, and kwargs as NAME=value entries,
// mirroring the source system's BashApp command-line convention.
func buildCatalog(apps []string) (*apprunner.Catalog, error) {
	catalog := apprunner.NewCatalog()
	for _, spec := range apps {
		name, command, ok := strings.Cut(spec, "=")
		if !ok || name == "" || command == "" {
			return nil, fmt.Errorf("invalid --app %q, expected name=command", spec)
		}
		base := strings.Fields(command)
		builder := func(args [][]byte, kwargs map[string][]byte) []string {
			argv := make([]string, len(base), len(base)+len(args)+len(kwargs))
			copy(argv, base)
			for _, a := range args {
				argv = append(argv, string(a))
			}
			for k, v := range kwargs {
				argv = append(argv, fmt.Sprintf("%s=%s", k, string(v)))
			}
			return argv
		}
		catalog.Register(name, apprunner.NewShellRunner(builder))
	}
	return catalog, nil
}
