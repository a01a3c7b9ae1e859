// Package apprunner implements the app contract shared by the in-process
// function runner and the shell/subprocess runner: both reduce a task's
// resolved arguments to (errno, result, stdout, stderr).
package apprunner

import "context"

// Runner executes one task invocation. args/kwargs are already-resolved
// byte payloads (task references have been substituted with their
// upstream results); environ is the process environment snapshot the task
// manager's Environment collaborator supplied.
type Runner interface {
	Run(ctx context.Context, args [][]byte, kwargs map[string][]byte, environ map[string]string) (errno int, result, stdout, stderr []byte, err error)
}

// Catalog maps stable app names to Runners, letting a worker reconstitute
// the executable for a task without deserializing live code out of the
// task's own payload.
type Catalog struct {
	runners map[string]Runner
}

// NewCatalog builds an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{runners: make(map[string]Runner)}
}

// Register adds name to the catalog, or replaces its Runner if already
// present.
func (c *Catalog) Register(name string, r Runner) {
	c.runners[name] = r
}

// Lookup returns the Runner registered for name.
func (c *Catalog) Lookup(name string) (Runner, bool) {
	r, ok := c.runners[name]
	return r, ok
}

// Names lists every registered app name.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.runners))
	for n := range c.runners {
		names = append(names, n)
	}
	return names
}
