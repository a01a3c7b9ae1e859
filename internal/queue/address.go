package queue

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jobtrellis/jobtrellis/internal/store"
)

// DefaultUser scopes a bare queue name (no "/" prefix) when no explicit
// user segment is given.
const DefaultUser = "default"

// Ref addresses a single queue by its optional user scope plus its own
// name, following the "user/queue" addressing scheme; either segment may
// carry a glob for list-style operations.
type Ref struct {
	User string
	Name string
}

// String renders the ref back into "user/queue" form.
func (r Ref) String() string {
	return r.User + "/" + r.Name
}

// ParseRef splits raw on its first "/". A raw value with no "/" is scoped
// to DefaultUser, matching the source system's bare-name convention.
func ParseRef(raw string) Ref {
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		return Ref{User: raw[:i], Name: raw[i+1:]}
	}
	return Ref{User: DefaultUser, Name: raw}
}

// IsGlob reports whether either segment of r carries a wildcard, making it
// unsuitable for single-queue operations like work/tasks.
func (r Ref) IsGlob() bool {
	return strings.Contains(r.User, "*") || strings.Contains(r.Name, "*")
}

// Dir returns the directory store.Open/Exists/Delete operate under for
// this ref: <baseDir>/<user>.
func (r Ref) Dir(baseDir string) string {
	return filepath.Join(baseDir, r.User)
}

// Open opens this ref's queue under baseDir with the given create policy.
func (r Ref) Open(baseDir string, busyTimeout time.Duration, create CreatePolicy) (*Queue, error) {
	q, err := OpenWithPolicy(r.Dir(baseDir), r.Name, busyTimeout, create)
	if err != nil {
		return nil, err
	}
	q.User = r.User
	return q, nil
}

// Discover resolves one or more "user/queue" patterns against baseDir into
// the concrete refs of queues that actually exist on disk, expanding any
// "*" glob over user and/or queue segments. Patterns are deduplicated
// across the whole call.
func Discover(baseDir string, patterns []string) ([]Ref, error) {
	var refs []Ref
	seen := map[string]bool{}
	for _, p := range patterns {
		matches, err := discoverOne(baseDir, ParseRef(p))
		if err != nil {
			return nil, err
		}
		for _, r := range matches {
			if seen[r.String()] {
				continue
			}
			seen[r.String()] = true
			refs = append(refs, r)
		}
	}
	return refs, nil
}

func discoverOne(baseDir string, ref Ref) ([]Ref, error) {
	users := []string{ref.User}
	if strings.Contains(ref.User, "*") {
		entries, err := os.ReadDir(baseDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		users = users[:0]
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if ok, _ := filepath.Match(ref.User, e.Name()); ok {
				users = append(users, e.Name())
			}
		}
	}

	var refs []Ref
	for _, user := range users {
		userDir := filepath.Join(baseDir, user)
		if !strings.Contains(ref.Name, "*") {
			if store.Exists(userDir, ref.Name) {
				refs = append(refs, Ref{User: user, Name: ref.Name})
			}
			continue
		}
		entries, err := os.ReadDir(userDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if ok, _ := filepath.Match(ref.Name, e.Name()); !ok {
				continue
			}
			if store.Exists(userDir, e.Name()) {
				refs = append(refs, Ref{User: user, Name: e.Name()})
			}
		}
	}
	return refs, nil
}
