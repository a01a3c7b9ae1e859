// Package manager implements the task manager: a named grouping of tasks
// sharing an environment, a scheduler policy (concurrency bound) and a
// worker-launch provider.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jobtrellis/jobtrellis/internal/provider"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

// SchedulerConfig bounds concurrent workers for a manager; it is the
// entire "scheduler" contract this repository implements, since queueing
// and batch-submission policy live in the Provider, not here.
type SchedulerConfig struct {
	MaxWorkers int `json:"max_workers"`
}

// Config is the serializable identity of a manager: environment variables,
// scheduler policy, and provider configuration. Two managers with the same
// Config always resolve to the same Manager.ID.
type Config struct {
	Environ   map[string]string      `json:"environ"`
	Scheduler SchedulerConfig        `json:"scheduler"`
	Provider  provider.Config        `json:"provider"`
}

// Manager is a named grouping of tasks.
type Manager struct {
	ID       string
	Config   Config
	provider provider.Provider
}

// New builds a Manager. ID is derived deterministically from Config, so
// resubmitting an identical environment/scheduler/provider combination
// reuses the same manager row instead of creating a duplicate.
func New(cfg Config, p provider.Provider) *Manager {
	return &Manager{ID: computeID(cfg), Config: cfg, provider: p}
}

func computeID(cfg Config) string {
	canon, _ := json.Marshal(canonicalConfig(cfg))
	return uuid.NewMD5(uuid.Nil, canon).String()
}

// canonicalConfig renders Config as a map for computeID. Environ stays a
// map (the sorted key list built here is not used in the result); Go's
// encoding/json sorts map keys, which is what makes two Configs with the
// same content marshal identically.
func canonicalConfig(cfg Config) map[string]interface{} {
	keys := make([]string, 0, len(cfg.Environ))
	for k := range cfg.Environ {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return map[string]interface{}{
		"environ":   cfg.Environ,
		"scheduler": cfg.Scheduler,
		"provider":  cfg.Provider,
	}
}

// Persist writes this manager's config into q, keyed by its ID. Safe to
// call repeatedly; later calls overwrite the same row.
func (m *Manager) Persist(q *queue.Queue) error {
	data, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("manager: marshal config: %w", err)
	}
	return q.PutManager(m.ID, data)
}

// Load reconstructs a Manager's Config from q; the caller supplies the
// Provider implementation since providers are not JSON-serializable.
func Load(q *queue.Queue, id string, p provider.Provider) (*Manager, error) {
	data, ok, err := q.GetManager(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("manager: %s: not found", id)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &Manager{ID: id, Config: cfg, provider: p}, nil
}

// Add tags tasks with this manager's ID and adds them to q.
func (m *Manager) Add(q *queue.Queue, tasks []*task.Task, policy queue.ReplacePolicy) ([]*queue.Future, error) {
	if err := m.Persist(q); err != nil {
		return nil, err
	}
	return q.Add(tasks, m.ID, policy)
}

// Spawn asks this manager's provider to launch up to min(ntasks,
// MaxWorkers) worker processes running command.
func (m *Manager) Spawn(ctx context.Context, command []string, ntasks int) error {
	if m.provider == nil {
		return fmt.Errorf("manager %s: no provider configured", m.ID)
	}
	want := ntasks
	if m.Config.Scheduler.MaxWorkers > 0 && want > m.Config.Scheduler.MaxWorkers {
		want = m.Config.Scheduler.MaxWorkers
	}
	if want <= 0 {
		return nil
	}
	return m.provider.Launch(ctx, command, want)
}
