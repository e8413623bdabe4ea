// Package resolve reconciles existing downstream content with incoming
// upstream content in direct-sync mode, one file at a time. Resolution is
// line/file granularity only; merge is literal concatenation, never a
// structural merge.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"repobridge/internal/errors"
)

// Strategy names a conflict-resolution policy.
type Strategy string

const (
	StrategyOverwrite Strategy = "overwrite"
	StrategyKeep      Strategy = "keep"
	StrategyBackup    Strategy = "backup"
	StrategyMerge     Strategy = "merge"
)

// ParseStrategy validates a configured strategy name. Unknown names fail
// rather than defaulting silently.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyOverwrite, StrategyKeep, StrategyBackup, StrategyMerge:
		return Strategy(name), nil
	default:
		return "", errors.UnknownStrategy(name)
	}
}

// mergeBanner separates existing from incoming content in a merge result.
const mergeBanner = "======= upstream sync: incoming content below ======="

// Decision is the outcome for one file: what to write (if anything) and
// where the pre-conflict content was preserved.
type Decision struct {
	Path          string
	Strategy      Strategy
	ResultContent string
	BackupPath    string // relative sibling path, backup strategy only
	BackupContent string
	Write         bool // false when existing content is kept untouched
}

// Resolver decides and materializes conflict outcomes under one root.
type Resolver struct {
	root string
	now  func() time.Time
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: root, now: time.Now}
}

// Resolve decides how to reconcile one file. existing is nil when the file
// does not exist downstream; no conflict exists then, or when both sides are
// already identical.
func (r *Resolver) Resolve(path string, existing *string, incoming string, strategy Strategy) (*Decision, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	// New file or already in sync: plain write, no conflict handling.
	if existing == nil || *existing == incoming {
		return &Decision{Path: path, Strategy: StrategyOverwrite, ResultContent: incoming, Write: existing == nil || *existing != incoming}, nil
	}

	switch strategy {
	case StrategyOverwrite:
		return &Decision{Path: path, Strategy: strategy, ResultContent: incoming, Write: true}, nil
	case StrategyKeep:
		return &Decision{Path: path, Strategy: strategy, ResultContent: *existing, Write: false}, nil
	case StrategyBackup:
		stamp := r.now().UTC().Format("20060102T150405")
		return &Decision{
			Path:          path,
			Strategy:      strategy,
			ResultContent: incoming,
			BackupPath:    fmt.Sprintf("%s.%s.bak", path, stamp),
			BackupContent: *existing,
			Write:         true,
		}, nil
	case StrategyMerge:
		merged := ensureNewline(*existing) + mergeBanner + "\n" + incoming
		return &Decision{Path: path, Strategy: strategy, ResultContent: merged, Write: true}, nil
	}
	return nil, errors.UnknownStrategy(string(strategy))
}

// Commit materializes a decision: the backup is written before the original
// path is touched, so pre-conflict content is never lost.
func (r *Resolver) Commit(dec *Decision) error {
	if dec.BackupPath != "" {
		backupAbs := filepath.Join(r.root, filepath.FromSlash(dec.BackupPath))
		if err := os.MkdirAll(filepath.Dir(backupAbs), 0o755); err != nil {
			return fmt.Errorf("creating backup dir: %w", err)
		}
		if err := os.WriteFile(backupAbs, []byte(dec.BackupContent), 0o644); err != nil {
			return fmt.Errorf("writing backup %s: %w", dec.BackupPath, err)
		}
	}
	if !dec.Write {
		return nil
	}
	abs := filepath.Join(r.root, filepath.FromSlash(dec.Path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", dec.Path, err)
	}
	if err := os.WriteFile(abs, []byte(dec.ResultContent), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dec.Path, err)
	}
	return nil
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
