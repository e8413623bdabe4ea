package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = "sync.lock"

// Lock is a single-flight guard over the downstream working tree: at most
// one pipeline instance mutates it at a time. Locks older than the TTL are
// treated as leftovers from a crashed run and broken.
type Lock struct {
	path string
}

type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Acquire takes the lock under dir or fails if another live run holds it.
func Acquire(dir string, ttl time.Duration) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	path := filepath.Join(dir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			payload, _ := json.Marshal(lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()})
			_, werr := f.Write(payload)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lock file: %w", firstErr(werr, cerr))
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			// Raced with a release; try again.
			continue
		}
		if ttl > 0 && time.Since(info.ModTime()) > ttl {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("breaking stale lock: %w", rmErr)
			}
			continue
		}
		return nil, fmt.Errorf("another sync run holds the lock at %s", path)
	}
	return nil, fmt.Errorf("could not acquire lock at %s", path)
}

func (l *Lock) Release() error {
	return os.Remove(l.path)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
