package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is a single invocation of an app with concrete arguments, tracked
// through the dependency state machine until it reaches a terminal state.
type Task struct {
	ID        string            `json:"id"`
	AppRef    string            `json:"app_ref"`
	Args      []Arg             `json:"args"`
	Kwargs    map[string]Arg    `json:"kwargs"`
	State     State             `json:"state"`
	ManagerID string            `json:"manager_id"`
	JobID     string            `json:"job_id,omitempty"`
	Errno     int               `json:"errno"`
	Result    []byte            `json:"result,omitempty"`
	Stdout    []byte            `json:"stdout,omitempty"`
	Stderr    []byte            `json:"stderr,omitempty"`
	Dtime     time.Duration     `json:"dtime"`
	StartedAt time.Time         `json:"started_at,omitempty"`

	// CreatedSeq is stamped by the store on Add and drives FIFO pop
	// ordering within a manager; it plays no part in task identity.
	CreatedSeq uint64 `json:"created_seq"`
}

func (t *Task) startedAtOrNow(now time.Time) time.Time {
	if t.StartedAt.IsZero() {
		return now
	}
	return t.StartedAt
}

// RequireIDs returns the deduplicated set of task IDs this task depends on,
// derived from both positional and keyword argument references.
func (t *Task) RequireIDs() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, a := range t.Args {
		if a.Kind == ArgRef {
			add(a.Ref)
		}
	}
	for _, a := range t.Kwargs {
		if a.Kind == ArgRef {
			add(a.Ref)
		}
	}
	return out
}

// New builds a Task with a deterministic, content-addressed ID: the MD5
// hash of the app reference plus the canonical encoding of args/kwargs,
// rendered through uuid.NewMD5 (RFC 4122 name-based UUID) instead of a
// hand-rolled hex-to-UUID formatter. Two calls with identical app/args/
// kwargs always produce the same ID; a duplicate ID at Add time means a
// duplicate invocation, not a new task.
func New(appRef string, args []Arg, kwargs map[string]Arg) *Task {
	if kwargs == nil {
		kwargs = map[string]Arg{}
	}
	t := &Task{
		AppRef: appRef,
		Args:   args,
		Kwargs: kwargs,
	}
	t.ID = ComputeID(appRef, args, kwargs)
	if len(t.RequireIDs()) > 0 {
		t.State = StateWaiting
	} else {
		t.State = StatePending
	}
	return t
}

// ComputeID derives the content-addressed task ID from its app reference
// and canonicalized arguments.
func ComputeID(appRef string, args []Arg, kwargs map[string]Arg) string {
	canon := CanonicalEncode(appRef, args, kwargs)
	return uuid.NewMD5(uuid.Nil, canon).String()
}

// WithManager returns a shallow clone of t tagged with managerID, used by
// Manager.Add / Queue.Add before the row is persisted. The manager a task
// runs under is not part of its identity, so this never changes t.ID.
func (t *Task) WithManager(managerID string) *Task {
	clone := *t
	clone.ManagerID = managerID
	return &clone
}

// ToJSON serializes the task for storage.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON deserializes a task previously written by ToJSON.
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Task) String() string {
	return fmt.Sprintf("Task(id=%s, app=%s, state=%s)", t.ID, t.AppRef, t.State)
}
