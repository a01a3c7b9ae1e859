package provider

import (
	"context"

	"github.com/jobtrellis/jobtrellis/internal/logger"
)

// Null stands in for an external batch-scheduler integration (Slurm, PBS,
// Kubernetes Jobs, ...) that is out of scope for this repository: it logs
// the request it would have submitted and does nothing else.
type Null struct{}

// NewNull builds a Null provider.
func NewNull() *Null { return &Null{} }

// Launch logs the would-be submission.
func (Null) Launch(ctx context.Context, command []string, n int) error {
	logger.Info().Strs("command", command).Int("count", n).Msg("null provider: would launch workers")
	return nil
}
