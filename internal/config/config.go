package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is jobtrellis's ambient configuration, loaded from config.yaml
// (or JOBTRELLIS_-prefixed environment variables) the same way the
// service's earlier Redis-backed revision loaded its own config.
type Config struct {
	Store    StoreConfig
	Spawner  SpawnerConfig
	Worker   WorkerConfig
	Server   ServerConfig
	Metrics  MetricsConfig
	LogLevel string
}

// StoreConfig bounds the embedded store's on-disk location and file-lock
// contention behavior. BackoffInitial and BackoffMax are loaded but not
// passed to the store, which always retries with backoff.Default().
type StoreConfig struct {
	BaseDir        string
	BusyTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// SpawnerConfig bounds the spawner's poll loop. Only Timeout is used (as
// the spawn command's default --timeout); PollInterval is loaded but the
// spawner always polls on its fixed 10s interval.
type SpawnerConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// WorkerConfig holds a worker shutdown timeout. It is loaded but neither
// the worker package nor the work command reads it.
type WorkerConfig struct {
	ShutdownTimeout time.Duration
}

// ServerConfig bounds the read-only admin HTTP surface.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads config.yaml from the working directory, ./config, or
// /etc/jobtrellis, falling back to defaults and JOBTRELLIS_-prefixed
// environment overrides when no file is present.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/jobtrellis")

	setDefaults()

	viper.SetEnvPrefix("JOBTRELLIS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("store.basedir", "./queues")
	viper.SetDefault("store.busytimeout", 120*time.Second)
	viper.SetDefault("store.backoffinitial", 10*time.Millisecond)
	viper.SetDefault("store.backoffmax", 2*time.Second)

	viper.SetDefault("spawner.pollinterval", 10*time.Second)
	viper.SetDefault("spawner.timeout", 0*time.Second)

	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.readtimeout", 10*time.Second)
	viper.SetDefault("server.writetimeout", 10*time.Second)
	viper.SetDefault("server.idletimeout", 60*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("loglevel", "info")
}
