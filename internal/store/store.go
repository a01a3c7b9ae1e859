// Package store implements the durable, single-file, multi-process-safe
// relation store backing a queue: the tasks, requires, managers and
// metadata relations described by the queue's data model.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jobtrellis/jobtrellis/internal/backoff"
	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	ErrNameInvalid   = errors.New("store: queue name must match ^[A-Za-z0-9_-]+$")
	ErrAlreadyExists = errors.New("store: queue already exists")
	ErrNotFound      = errors.New("store: not found")
	ErrStoreBusy     = errors.New("store: timed out waiting for the file lock")
	ErrStoreCorrupt  = errors.New("store: on-disk file is corrupt")
)

var (
	tasksBucket    = []byte("tasks")
	requiresBucket = []byte("requires")
	managersBucket = []byte("managers")
	metadataBucket = []byte("metadata")
)

const (
	queueFileName = "queue.db"
	dirMode       = 0o700
	fileMode      = 0o600

	// acquireWindow bounds a single bolt.Open attempt; Store retries across
	// many such windows, applying its own jittered backoff between them,
	// until BusyTimeout is exhausted.
	acquireWindow = 50 * time.Millisecond
)

// Store is a handle to one queue's on-disk relations. It does not keep a
// bbolt handle open between calls: each operation acquires the file lock,
// runs its transaction, and releases it, so that many worker/spawner/CLI
// processes can interleave access to the same queue.db, matching the
// file-level-locking-with-retry model the specification requires. This
// differs from a typical single-process bbolt user (one long-lived *DB),
// which is the right shape for an embedded store with one owner, but not
// for the many cooperating OS processes this queue is designed for.
type Store struct {
	Path        string
	Name        string
	BusyTimeout time.Duration
	backoff     backoff.Policy
}

// CreatePolicy controls Open's must-(not-)already-exist semantics,
// mirroring the source system's open(name, base_dir, create) tri-state.
type CreatePolicy int

const (
	// CreateIfMissing creates the queue only if it doesn't already exist,
	// and opens the existing one otherwise.
	CreateIfMissing CreatePolicy = iota
	// MustCreate fails with ErrAlreadyExists if the queue already exists.
	MustCreate
	// MustExist fails with ErrNotFound if the queue does not already
	// exist, and never creates anything.
	MustExist
)

// Open prepares the on-disk layout for a queue named name under baseDir:
// <baseDir>/<name>/queue.db, directory mode 0700, file mode 0600. create
// selects whether Open may create the queue, must create it, or must find
// it already there.
func Open(baseDir, name string, busyTimeout time.Duration, create CreatePolicy) (*Store, error) {
	if !nameRe.MatchString(name) {
		return nil, ErrNameInvalid
	}
	dir := filepath.Join(baseDir, name)
	path := filepath.Join(dir, queueFileName)

	if busyTimeout <= 0 {
		busyTimeout = 120 * time.Second
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch create {
	case MustCreate:
		if exists {
			return nil, ErrAlreadyExists
		}
	case MustExist:
		if !exists {
			return nil, ErrNotFound
		}
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("store: create queue dir: %w", err)
	}
	if err := os.Chmod(dir, dirMode); err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("could not enforce queue directory mode")
	}

	s := &Store{Path: path, Name: name, BusyTimeout: busyTimeout, backoff: backoff.Default()}

	if !exists {
		if err := s.withDB("open", true, func(db *bolt.DB) error {
			return db.Update(func(tx *bolt.Tx) error {
				for _, b := range [][]byte{tasksBucket, requiresBucket, managersBucket, metadataBucket} {
					if _, err := tx.CreateBucketIfNotExists(b); err != nil {
						return err
					}
				}
				meta := tx.Bucket(metadataBucket)
				if meta.Get([]byte("queue_state")) == nil {
					if err := meta.Put([]byte("queue_state"), []byte("ACTIVE")); err != nil {
						return err
					}
				}
				return nil
			})
		}); err != nil {
			return nil, err
		}
		if err := os.Chmod(path, fileMode); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not enforce queue file mode")
		}
	}

	return s, nil
}

// Exists reports whether a queue.db already exists at baseDir/name without
// creating anything.
func Exists(baseDir, name string) bool {
	_, err := os.Stat(filepath.Join(baseDir, name, queueFileName))
	return err == nil
}

// Delete removes the queue's directory entirely. Callers should already
// hold no open Store operations on this path.
func Delete(baseDir, name string) error {
	return os.RemoveAll(filepath.Join(baseDir, name))
}

// withDB acquires a fresh bbolt handle on Path, retrying on contention with
// Store's backoff policy until BusyTimeout elapses, then runs fn and closes
// the handle. op names the caller for StoreOperationErrors/lock-wait metrics
// ("view", "update", "open").
func (s *Store) withDB(op string, write bool, fn func(db *bolt.DB) error) error {
	start := time.Now()
	deadline := start.Add(s.BusyTimeout)
	for attempt := 0; ; attempt++ {
		db, err := bolt.Open(s.Path, fileMode, &bolt.Options{
			Timeout:  acquireWindow,
			ReadOnly: !write,
		})
		if err == nil {
			defer db.Close()
			if attempt > 0 {
				metrics.RecordStoreLockWait(s.Name, time.Since(start).Seconds())
			}
			if err := fn(db); err != nil {
				metrics.RecordStoreError(s.Name, op)
				return err
			}
			return nil
		}
		if !errors.Is(err, bolt.ErrTimeout) {
			metrics.RecordStoreError(s.Name, op)
			if isCorruption(err) {
				return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
			}
			return err
		}
		if time.Now().After(deadline) {
			metrics.RecordStoreError(s.Name, op)
			metrics.RecordStoreLockWait(s.Name, time.Since(start).Seconds())
			return ErrStoreBusy
		}
		time.Sleep(s.backoff.Delay(attempt))
	}
}

func isCorruption(err error) bool {
	return errors.Is(err, bolt.ErrInvalid) ||
		errors.Is(err, bolt.ErrChecksum) ||
		errors.Is(err, bolt.ErrVersionMismatch)
}

// View runs fn against a read-only view of the store.
func (s *Store) View(fn func(tx *bolt.Tx) error) error {
	return s.withDB("view", false, func(db *bolt.DB) error {
		return db.View(fn)
	})
}

// Update runs fn against a read-write transaction, holding the file lock
// for fn's entire duration. Callers needing "hold the lock across
// read-then-write" semantics (Pop, the WAITING->PENDING cascade) must do
// both the read and the write inside a single Update call.
func (s *Store) Update(fn func(tx *bolt.Tx) error) error {
	return s.withDB("update", true, func(db *bolt.DB) error {
		return db.Update(fn)
	})
}

// NextSeq returns a monotonically increasing sequence number scoped to
// this store's tasks bucket, used to stamp CreatedSeq for FIFO pop
// ordering. Must be called from inside an Update transaction.
func NextSeq(tx *bolt.Tx) (uint64, error) {
	b := tx.Bucket(tasksBucket)
	return b.NextSequence()
}

func encodeSeq(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

// Buckets exposes the bucket name constants to the queue package, which
// owns the relation schema (key layouts, value encodings) built on top of
// this generic transactional store.
func Buckets() (tasks, requires, managers, metadata []byte) {
	return tasksBucket, requiresBucket, managersBucket, metadataBucket
}
