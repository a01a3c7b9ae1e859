package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobtrellis/jobtrellis/internal/spawner"
)

func newSpawnCommand() *cobra.Command {
	var (
		queueNames []string
		timeout    time.Duration
		binary     string
	)

	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Run the spawner loop, launching workers for pending tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(queueNames) == 0 {
				return errNoQueues
			}
			if binary == "" {
				binary = jobtrellisBinary()
			}

			queues, err := openMatching(cfg.Store.BaseDir, queueNames, cfg.Store.BusyTimeout)
			if err != nil {
				return err
			}

			buildCommand := func(queueName, managerID string) []string {
				return []string{binary, "work", "--queue", queueName, "--manager", managerID, "--once", "--queue-dir", cfg.Store.BaseDir}
			}

			if timeout == 0 {
				timeout = cfg.Spawner.Timeout
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return spawner.Run(ctx, queues, buildCommand, timeout)
		},
	}

	cmd.Flags().StringArrayVarP(&queueNames, "queue", "q", nil, "queue name to watch (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop polling after this long (0 = run until all queues are paused or ctx is cancelled)")
	cmd.Flags().StringVar(&binary, "binary", "", "path to the jobtrellis binary to launch for workers (default: this executable's path)")
	return cmd
}

func jobtrellisBinary() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return os.Args[0]
}
