// Command jobtrellis is the single entry point for every role in the task
// pipeline: running a worker cycle, driving the spawner loop, and the
// operator-facing inspection/control commands (queues, tasks, pause,
// resume, delete, retry). It replaces the source system's single
// action_from_args argparse dispatch with a cobra subcommand tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobtrellis/jobtrellis/internal/config"
	"github.com/jobtrellis/jobtrellis/internal/logger"
)

var (
	cfgFile   string
	queueDir  string
	logLevel  string
	logPretty bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "jobtrellis",
		Short: "Durable, dependency-aware task queue",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(logLevel, logPretty)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml (default: search . ./config /etc/jobtrellis)")
	root.PersistentFlags().StringVar(&queueDir, "queue-dir", "", "base directory holding queue files (overrides config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "use human-readable console logging instead of JSON")

	root.AddCommand(
		newWorkCommand(),
		newSpawnCommand(),
		newQueuesCommand(),
		newTasksCommand(),
		newPauseCommand(),
		newResumeCommand(),
		newDeleteCommand(),
		newRetryCommand(),
	)
	return root
}

// loadConfig reads the ambient config, then the file named by --config
// when given, honoring --queue-dir as an override of the configured store
// base directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
		cfg = &config.Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
		}
	}
	if queueDir != "" {
		cfg.Store.BaseDir = queueDir
	}
	return cfg, nil
}
