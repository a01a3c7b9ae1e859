package provider

import (
	"context"
	"os/exec"
	"sync"

	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
)

// Local forks worker subprocesses directly on the current host via
// os/exec. It tracks the processes it has launched per command so that
// repeated Launch calls for the same manager top up capacity instead of
// forking past what was requested.
type Local struct {
	mu      sync.Mutex
	running map[string][]*exec.Cmd
}

// NewLocal builds a Local provider.
func NewLocal() *Local {
	return &Local{running: make(map[string][]*exec.Cmd)}
}

// Launch forks worker processes for command until n are running for that
// exact command line, reaping any that have already exited.
func (l *Local) Launch(ctx context.Context, command []string, n int) error {
	if len(command) == 0 || n <= 0 {
		return nil
	}
	key := joinCommand(command)

	l.mu.Lock()
	defer l.mu.Unlock()

	alive := l.running[key][:0]
	for _, cmd := range l.running[key] {
		if cmd.ProcessState == nil {
			alive = append(alive, cmd)
		}
	}
	l.running[key] = alive

	for len(l.running[key]) < n {
		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		if err := cmd.Start(); err != nil {
			logger.Error().Err(err).Strs("command", command).Msg("local provider failed to launch worker")
			return err
		}
		l.running[key] = append(l.running[key], cmd)
		go func(c *exec.Cmd) { _ = c.Wait() }(cmd)
	}
	metrics.SetActiveWorkers(managerIDFromCommand(command), float64(len(l.running[key])))
	return nil
}

// managerIDFromCommand extracts the --manager flag value from a worker
// command line, for labeling ActiveWorkers; returns "" if not present.
func managerIDFromCommand(command []string) string {
	for i, c := range command {
		if c == "--manager" && i+1 < len(command) {
			return command[i+1]
		}
	}
	return ""
}

func joinCommand(command []string) string {
	out := ""
	for i, c := range command {
		if i > 0 {
			out += "\x00"
		}
		out += c
	}
	return out
}
