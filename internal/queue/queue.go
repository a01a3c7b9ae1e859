// Package queue implements the durable, dependency-aware task queue: the
// transactional API over the store that enforces the WAITING/PENDING
// cascade, FIFO-within-manager popping, and queue-level pause/resume.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
	"github.com/jobtrellis/jobtrellis/internal/store"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

// ReplacePolicy names how Add handles a task ID that already exists,
// replacing the source system's overloaded replace=None.
type ReplacePolicy int

const (
	// RejectExisting fails the whole Add call if any task ID already exists.
	RejectExisting ReplacePolicy = iota
	// Replace overwrites existing rows; dependency edges for replaced rows
	// are left untouched (matching the source's bare `replace=True` path,
	// which skips re-inserting requires/managers).
	Replace
	// Upsert inserts new rows and replaces existing ones, writing
	// dependency edges only for newly inserted tasks.
	Upsert
)

var (
	ErrQueueExists  = errors.New("queue: already exists")
	ErrQueueMissing = errors.New("queue: does not exist")
	ErrPaused       = errors.New("queue: paused")
)

const metadataStateKey = "queue_state"

// Queue is a durable, named collection of tasks, their dependency graph,
// and their manager assignments.
type Queue struct {
	Name string
	// User is the user segment this queue was opened under via a Ref,
	// empty when opened directly by name (Open/OpenWithPolicy) outside
	// any user/queue addressing.
	User string
	st   *store.Store
}

// Ref returns the user/queue address this Queue was opened under,
// defaulting User to DefaultUser when it was opened outside Ref.Open.
func (q *Queue) Ref() Ref {
	user := q.User
	if user == "" {
		user = DefaultUser
	}
	return Ref{User: user, Name: q.Name}
}

// CreatePolicy re-exports store.CreatePolicy for callers that don't
// otherwise need to import internal/store directly.
type CreatePolicy = store.CreatePolicy

const (
	CreateIfMissing = store.CreateIfMissing
	MustCreate      = store.MustCreate
	MustExist       = store.MustExist
)

// Open opens (creating if needed) the queue named name under baseDir.
func Open(baseDir, name string, busyTimeout time.Duration) (*Queue, error) {
	return OpenWithPolicy(baseDir, name, busyTimeout, store.CreateIfMissing)
}

// OpenWithPolicy opens the queue named name under baseDir, applying create
// to decide whether it may be created, must be created, or must already
// exist (store.ErrAlreadyExists / store.ErrNotFound on violation).
func OpenWithPolicy(baseDir, name string, busyTimeout time.Duration, create CreatePolicy) (*Queue, error) {
	st, err := store.Open(baseDir, name, busyTimeout, create)
	if err != nil {
		return nil, err
	}
	return &Queue{Name: name, st: st}, nil
}

// getTask reads a task row. A row is the JSON-marshaled task.Task and
// nothing else, since task.Task already carries state, manager id and
// results.
func getTask(b *bolt.Bucket, id string) (*task.Task, bool) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, false
	}
	t, err := task.FromJSON(raw)
	if err != nil {
		return nil, false
	}
	return t, true
}

func putTask(b *bolt.Bucket, t *task.Task) error {
	raw, err := t.ToJSON()
	if err != nil {
		return err
	}
	return b.Put([]byte(t.ID), raw)
}

func requireKey(id, require string) []byte {
	return []byte(id + "\x00" + require)
}

// Add persists tasks, tagging each with managerID, and returns one Future
// per task in the same order. All tasks in a single Add call are written
// in one transaction so that a batch can reference dependencies added in
// the same call.
func (q *Queue) Add(tasks []*task.Task, managerID string, policy ReplacePolicy) ([]*Future, error) {
	futures := make([]*Future, len(tasks))
	err := q.st.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket(tasksBucketName())
		rb := tx.Bucket(requiresBucketName())

		for i, t := range tasks {
			tagged := t.WithManager(managerID)
			tasks[i] = tagged

			_, exists := getTask(tb, tagged.ID)
			switch policy {
			case RejectExisting:
				if exists {
					return fmt.Errorf("queue: task %s: %w", tagged.ID, task.ErrTaskAlreadyExists)
				}
			case Replace:
				// Overwrite silently; requires/manager edges for an
				// existing row are left as originally recorded.
			case Upsert:
				// Falls through to the same Put below; requires are only
				// (re)written for rows that did not already exist.
			}

			seq, err := store.NextSeq(tx)
			if err != nil {
				return err
			}
			tagged.CreatedSeq = seq

			if err := putTask(tb, tagged); err != nil {
				return err
			}

			if policy == Replace && exists {
				continue
			}
			if policy == Upsert && exists {
				continue
			}
			for _, reqID := range tagged.RequireIDs() {
				if _, ok := getTask(tb, reqID); !ok {
					return fmt.Errorf("queue: task %s requires %s: %w", tagged.ID, reqID, task.ErrDependencyNotFound)
				}
				if err := rb.Put(requireKey(tagged.ID, reqID), []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, t := range tasks {
		futures[i] = &Future{queue: q, id: t.ID}
		metrics.RecordTaskSubmission(t.AppRef)
	}
	return futures, nil
}

// SetTaskState forces a task's state, enforcing the state machine's valid
// transitions, persists it, and cascades WAITING dependents when the new
// state is terminal.
func (q *Queue) SetTaskState(id string, target task.State) error {
	return q.st.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket(tasksBucketName())
		t, ok := getTask(tb, id)
		if !ok {
			return task.ErrTaskNotFound
		}
		sm := task.NewStateMachine(t)
		if err := sm.Transition(target); err != nil {
			return err
		}
		if err := putTask(tb, t); err != nil {
			return err
		}
		if target.IsFinal() {
			return cascade(tx, id, target)
		}
		return nil
	})
}

// Finish is called by the worker loop to record an app run's outcome
// (errno/result/stdout/stderr) and cascade in one transaction.
func (q *Queue) Finish(t *task.Task, errno int, result, stdout, stderr []byte) error {
	return q.st.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket(tasksBucketName())
		current, ok := getTask(tb, t.ID)
		if !ok {
			return task.ErrTaskNotFound
		}
		sm := task.NewStateMachine(current)
		if err := sm.Finish(errno, result, stdout, stderr); err != nil {
			return err
		}
		if err := putTask(tb, current); err != nil {
			return err
		}
		metrics.RecordTaskCompletion(current.AppRef, current.State.String(), current.Dtime.Seconds())
		return cascade(tx, current.ID, current.State)
	})
}

// cascade walks the dependents of completedID (tasks whose requires
// include completedID) and reacts to outcome:
//   - SUCCEEDED: a dependent still WAITING moves to PENDING once none of
//     its requirements remain blocking.
//   - any other outcome (FAILED, KILLED, CANCELLED, UNKNOWN): direct
//     dependents still WAITING are
//     themselves marked CANCELLED (this implementation's resolution of
//     the source's undecided upstream-failure-propagation question), and
//     the cancellation is propagated transitively to their own WAITING
//     dependents in turn.
//
// Runs inside the caller's single outer transaction; no lock re-entry.
func cascade(tx *bolt.Tx, completedID string, outcome task.State) error {
	tb := tx.Bucket(tasksBucketName())
	rb := tx.Bucket(requiresBucketName())

	dependents, err := dependentsOf(rb, completedID)
	if err != nil {
		return err
	}

	for _, depID := range dependents {
		dep, ok := getTask(tb, depID)
		if !ok || dep.State != task.StateWaiting {
			continue
		}

		if outcome != task.StateSucceeded {
			sm := task.NewStateMachine(dep)
			if err := sm.Cancel(); err != nil {
				logger.Warn().Str("task_id", depID).Err(err).Msg("could not cancel dependent of failed task")
				continue
			}
			if err := putTask(tb, dep); err != nil {
				return err
			}
			metrics.RecordTaskCancelled(dep.AppRef)
			if err := cascade(tx, depID, task.StateCancelled); err != nil {
				return err
			}
			continue
		}

		blocked, err := hasBlockingRequirement(tb, rb, depID)
		if err != nil {
			return err
		}
		if !blocked {
			sm := task.NewStateMachine(dep)
			if err := sm.Transition(task.StatePending); err != nil {
				continue
			}
			if err := putTask(tb, dep); err != nil {
				return err
			}
		}
	}
	return nil
}

// dependentsOf returns the IDs of tasks whose requires set includes
// requireID. The requires bucket has no secondary index on its require
// column, so this is a full scan; acceptable at this queue's scale.
func dependentsOf(rb *bolt.Bucket, requireID string) ([]string, error) {
	var out []string
	c := rb.Cursor()
	suffix := []byte("\x00" + requireID)
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if hasSuffix(k, suffix) {
			out = append(out, string(k[:len(k)-len(suffix)]))
		}
	}
	return out, nil
}

func hasSuffix(b, suffix []byte) bool {
	if len(b) < len(suffix) {
		return false
	}
	return string(b[len(b)-len(suffix):]) == string(suffix)
}

// hasBlockingRequirement reports whether any of id's requirements is still
// WAITING, PENDING or RUNNING.
func hasBlockingRequirement(tb, rb *bolt.Bucket, id string) (bool, error) {
	prefix := []byte(id + "\x00")
	c := rb.Cursor()
	for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
		reqID := string(k[len(prefix):])
		req, ok := getTask(tb, reqID)
		if !ok {
			continue
		}
		if req.State.IsBlocking() {
			return true, nil
		}
	}
	return false, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	return string(b[:len(prefix)]) == string(prefix)
}

// Filter narrows Tasks/Counts/Pop queries.
type Filter struct {
	ID        string
	ManagerID string
	State     *task.State
}

// Tasks returns tasks matching f, ordered by CreatedSeq (submission order).
func (q *Queue) Tasks(f Filter) ([]*task.Task, error) {
	var out []*task.Task
	err := q.st.View(func(tx *bolt.Tx) error {
		tb := tx.Bucket(tasksBucketName())
		return tb.ForEach(func(_, v []byte) error {
			t, err := task.FromJSON(v)
			if err != nil {
				return nil
			}
			if matches(t, f) {
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedSeq < out[j].CreatedSeq })
	return out, nil
}

func matches(t *task.Task, f Filter) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.ManagerID != "" && t.ManagerID != f.ManagerID {
		return false
	}
	if f.State != nil && t.State != *f.State {
		return false
	}
	return true
}

// Counts returns the number of tasks matching f.
func (q *Queue) Counts(f Filter) (int, error) {
	tasks, err := q.Tasks(f)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

// Summary returns the per-state task counts for managerID ("" for all
// managers).
func (q *Queue) Summary(managerID string) (map[task.State]int, error) {
	counts := make(map[task.State]int, len(task.AllStates))
	for _, s := range task.AllStates {
		state := s
		n, err := q.Counts(Filter{ManagerID: managerID, State: &state})
		if err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, nil
}

// State returns the queue's ACTIVE/PAUSED metadata flag.
func (q *Queue) State() (string, error) {
	var state string
	err := q.st.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(metadataBucketName())
		state = string(mb.Get([]byte(metadataStateKey)))
		return nil
	})
	return state, err
}

// Paused reports whether the queue is currently PAUSED.
func (q *Queue) Paused() (bool, error) {
	s, err := q.State()
	return s == "PAUSED", err
}

// Pause stops Pop from handing out new work; in-flight RUNNING tasks are
// unaffected and finish normally.
func (q *Queue) Pause() error {
	return q.setQueueState("PAUSED")
}

// Resume re-enables Pop.
func (q *Queue) Resume() error {
	return q.setQueueState("ACTIVE")
}

func (q *Queue) setQueueState(state string) error {
	return q.st.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(metadataBucketName())
		return mb.Put([]byte(metadataStateKey), []byte(state))
	})
}

// Pop selects the oldest PENDING task matching f, transitions it to
// RUNNING, and returns it. Its arguments are not resolved here; callers
// resolve them with ResolveArgs. Returns (nil, nil)
// if the queue is paused or no eligible task exists. The read and the
// RUNNING write happen inside one transaction, holding the file lock
// across both.
func (q *Queue) Pop(f Filter) (*task.Task, error) {
	var popped *task.Task
	err := q.st.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(metadataBucketName())
		if string(mb.Get([]byte(metadataStateKey))) == "PAUSED" {
			return nil
		}

		tb := tx.Bucket(tasksBucketName())
		pendingState := task.StatePending
		pf := f
		pf.State = &pendingState

		var candidate *task.Task
		err := tb.ForEach(func(_, v []byte) error {
			t, err := task.FromJSON(v)
			if err != nil {
				return nil
			}
			if !matches(t, pf) {
				return nil
			}
			if candidate == nil || t.CreatedSeq < candidate.CreatedSeq {
				candidate = t
			}
			return nil
		})
		if err != nil {
			return err
		}
		if candidate == nil {
			return nil
		}

		sm := task.NewStateMachine(candidate)
		if err := sm.Start(); err != nil {
			return err
		}
		if err := putTask(tb, candidate); err != nil {
			return err
		}
		popped = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return popped, nil
}

// ResolveArgs substitutes every task reference in t with the SUCCEEDED
// result it points to.
func (q *Queue) ResolveArgs(t *task.Task) (args [][]byte, kwargs map[string][]byte, err error) {
	var lookupErr error
	lookup := func(id string) ([]byte, task.State, bool) {
		var result []byte
		var state task.State
		var ok bool
		err := q.st.View(func(tx *bolt.Tx) error {
			tb := tx.Bucket(tasksBucketName())
			dep, found := getTask(tb, id)
			if !found {
				return nil
			}
			ok = true
			result = dep.Result
			state = dep.State
			return nil
		})
		if err != nil {
			lookupErr = err
		}
		return result, state, ok
	}
	args, kwargs, err = task.ResolveArgs(t, lookup)
	if err != nil {
		return nil, nil, err
	}
	if lookupErr != nil {
		return nil, nil, lookupErr
	}
	return args, kwargs, nil
}

// PutManager persists a manager's opaque serialized config under id. The
// manager package owns the encoding; the queue only stores bytes.
func (q *Queue) PutManager(id string, data []byte) error {
	return q.st.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(managersBucketName())
		return mb.Put([]byte(id), data)
	})
}

// GetManager returns the raw bytes previously stored under id.
func (q *Queue) GetManager(id string) ([]byte, bool, error) {
	var data []byte
	var ok bool
	err := q.st.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(managersBucketName())
		v := mb.Get([]byte(id))
		if v == nil {
			return nil
		}
		ok = true
		data = append([]byte(nil), v...)
		return nil
	})
	return data, ok, err
}

// ManagerIDs lists every manager id this queue has ever recorded.
func (q *Queue) ManagerIDs() ([]string, error) {
	var ids []string
	err := q.st.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(managersBucketName())
		return mb.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Delete removes the queue's on-disk file and directory. Callers should
// not hold any other Queue handle open on the same path afterward.
func (q *Queue) Delete(baseDir string) error {
	return store.Delete(baseDir, q.Name)
}

func tasksBucketName() []byte {
	tasks, _, _, _ := store.Buckets()
	return tasks
}

func requiresBucketName() []byte {
	_, requires, _, _ := store.Buckets()
	return requires
}

func managersBucketName() []byte {
	_, _, managers, _ := store.Buckets()
	return managers
}

func metadataBucketName() []byte {
	_, _, _, metadata := store.Buckets()
	return metadata
}
