// Package state persists sync bookkeeping: the last processed upstream
// commit per remote and an append-only record of runs.
package state

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"repobridge/internal/errors"
)

const (
	lastProcessedPrefix = "last:"
	runPrefix           = "run:"
)

// Run records one synchronization pass.
type Run struct {
	ID         string    `json:"id"`
	Remote     string    `json:"remote"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Commits    []string  `json:"commits"` // processed, in order
	PROpened   []string  `json:"prs_opened,omitempty"`
	Error      string    `json:"error,omitempty"`
}

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.State("opening state store", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; tests use an in-memory one.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LastProcessed returns the last processed commit for a remote, with false
// when nothing was recorded yet.
func (s *Store) LastProcessed(remote string) (string, bool, error) {
	var commit string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastProcessedPrefix + remote))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			commit = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.State("reading last processed commit", err)
	}
	return commit, true, nil
}

func (s *Store) SetLastProcessed(remote, commit string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastProcessedPrefix+remote), []byte(commit))
	})
	if err != nil {
		return errors.State("recording last processed commit", err)
	}
	return nil
}

// RecordRun appends a run record keyed by its ID.
func (s *Store) RecordRun(run *Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return errors.State("encoding run record", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runPrefix+run.ID), payload)
	})
	if err != nil {
		return errors.State("recording run", err)
	}
	return nil
}

// Runs returns every recorded run, ordered by start time.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					return err
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.State("listing runs", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}
