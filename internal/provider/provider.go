// Package provider defines the pluggable adapter that launches worker
// processes on behalf of a spawner: a local fork provider and a null
// provider stand in for the batch-scheduler integrations that are out of
// scope for this repository.
package provider

import "context"

// Config is the serializable identity of a provider: its kind name plus
// any kind-specific options. Concrete Provider values are constructed from
// Config by New.
type Config struct {
	Kind    string            `json:"kind"`
	Options map[string]string `json:"options,omitempty"`
}

// Provider launches up to n worker processes running command. Launch must
// be idempotent and fire-and-forget: it does not wait for the launched
// workers to exit, and repeated calls for the same manager should not pile
// up unbounded worker processes beyond what was actually requested.
type Provider interface {
	Launch(ctx context.Context, command []string, n int) error
}

// New builds the Provider named by cfg.Kind.
func New(cfg Config) Provider {
	switch cfg.Kind {
	case "local":
		return NewLocal()
	default:
		return NewNull()
	}
}
