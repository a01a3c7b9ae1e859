package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jobtrellis/jobtrellis/internal/queue"
)

var errNoQueues = errors.New("at least one --queue is required")

// openMatching resolves one or more "user/queue" patterns (each optionally
// globbed) against baseDir and opens every matching queue. Every matched
// queue already exists on disk by construction, so queues are opened with
// queue.MustExist.
func openMatching(baseDir string, patterns []string, busyTimeout time.Duration) ([]*queue.Queue, error) {
	refs, err := queue.Discover(baseDir, patterns)
	if err != nil {
		return nil, err
	}
	queues := make([]*queue.Queue, 0, len(refs))
	for _, ref := range refs {
		q, err := ref.Open(baseDir, busyTimeout, queue.MustExist)
		if err != nil {
			return nil, fmt.Errorf("open queue %s: %w", ref, err)
		}
		queues = append(queues, q)
	}
	return queues, nil
}

// openSingle resolves a single, non-globbed "user/queue" pattern and opens
// it, erroring if the pattern contains a wildcard.
func openSingle(baseDir, pattern string, busyTimeout time.Duration) (*queue.Queue, error) {
	ref := queue.ParseRef(pattern)
	if ref.IsGlob() {
		return nil, fmt.Errorf("provide a single queue, not a glob: %q", pattern)
	}
	q, err := ref.Open(baseDir, busyTimeout, queue.MustExist)
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", ref, err)
	}
	return q, nil
}

func newTabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}
