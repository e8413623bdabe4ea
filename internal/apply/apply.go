package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repobridge/internal/errors"
	"repobridge/internal/gitx"
)

// Strategy names one level of apply tolerance, ordered most- to
// least-preserving of local edits in the target tree.
type Strategy string

const (
	StrategyThreeWay      Strategy = "three-way"
	StrategyReject        Strategy = "reject-tolerant"
	StrategyWhitespaceFix Strategy = "whitespace-fix"
	StrategyPlain         Strategy = "plain"
)

var cascade = []struct {
	strategy Strategy
	mode     gitx.ApplyMode
}{
	{StrategyThreeWay, gitx.ApplyThreeWay},
	{StrategyReject, gitx.ApplyReject},
	{StrategyWhitespaceFix, gitx.ApplyWhitespaceFix},
	{StrategyPlain, gitx.ApplyPlain},
}

// RejectedFragment is a short diagnostic preview of a hunk that could not be
// applied. The underlying .rej artifact is deleted after capture.
type RejectedFragment struct {
	Path    string
	Preview string
}

// Outcome reports how a patch landed.
type Outcome struct {
	StrategyUsed      Strategy
	PartiallyApplied  bool
	RejectedFragments []RejectedFragment
	ChangedFiles      []string
}

// Tree is the slice of version-control capability the applier needs.
type Tree interface {
	Root() string
	Apply(ctx context.Context, patchPath string, mode gitx.ApplyMode) error
	Reset(ctx context.Context) error
	ChangedFiles(ctx context.Context) ([]string, error)
	RejectFiles() ([]string, error)
}

// Applier lands patch text into a working tree through the strategy cascade.
type Applier struct {
	tree       Tree
	archiveDir string
	logger     *zap.Logger
}

func NewApplier(tree Tree, archiveDir string, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{tree: tree, archiveDir: archiveDir, logger: logger}
}

// Apply attempts each strategy in order until one lands. On total failure the
// patch text is archived for manual inspection before the error surfaces.
// A successful apply with zero changed files is a valid no-op outcome.
func (a *Applier) Apply(ctx context.Context, patchText string) (*Outcome, error) {
	if err := os.MkdirAll(a.archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	patchPath := filepath.Join(a.archiveDir, "pending-"+uuid.NewString()+".patch")
	if err := os.WriteFile(patchPath, []byte(ensureTrailingNewline(patchText)), 0o644); err != nil {
		return nil, fmt.Errorf("writing patch file: %w", err)
	}
	defer os.Remove(patchPath)

	var lastErr error
	for _, step := range cascade {
		err := a.tree.Apply(ctx, patchPath, step.mode)

		if step.strategy == StrategyReject {
			// Reject-tolerant applies what it can; success is measured by
			// inspecting the tree, not by the exit code.
			outcome, inspectErr := a.inspect(ctx, step.strategy)
			if inspectErr != nil {
				return nil, inspectErr
			}
			if err == nil || len(outcome.ChangedFiles) > 0 {
				a.logger.Info("patch applied",
					zap.String("strategy", string(step.strategy)),
					zap.Int("changed_files", len(outcome.ChangedFiles)),
					zap.Int("rejected_fragments", len(outcome.RejectedFragments)))
				return outcome, nil
			}
		} else if err == nil {
			outcome, inspectErr := a.inspect(ctx, step.strategy)
			if inspectErr != nil {
				return nil, inspectErr
			}
			a.logger.Info("patch applied",
				zap.String("strategy", string(step.strategy)),
				zap.Int("changed_files", len(outcome.ChangedFiles)))
			return outcome, nil
		}

		a.logger.Debug("apply strategy failed",
			zap.String("strategy", string(step.strategy)),
			zap.Error(err))
		lastErr = err

		// A failed attempt can leave debris behind: three-way leaves conflict
		// markers, reject leaves partial hunks. The next strategy must be
		// measured against a clean baseline, not against that wreckage.
		if resetErr := a.tree.Reset(ctx); resetErr != nil {
			return nil, resetErr
		}
	}

	archivePath, archiveErr := ArchivePatch(a.archiveDir, patchText)
	if archiveErr != nil {
		a.logger.Warn("archiving failed patch", zap.Error(archiveErr))
		archivePath = ""
	}
	return nil, errors.PatchApply("every apply strategy failed", archivePath, lastErr)
}

// inspect builds the outcome for a landed (or partially landed) patch:
// changed files, reject fragment previews, and cleanup of the .rej artifacts
// so none remain in the tree after the outcome is reported.
func (a *Applier) inspect(ctx context.Context, strategy Strategy) (*Outcome, error) {
	fragments, err := a.collectRejects()
	if err != nil {
		return nil, err
	}
	changed, err := a.tree.ChangedFiles(ctx)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		StrategyUsed:      strategy,
		PartiallyApplied:  len(fragments) > 0,
		RejectedFragments: fragments,
		ChangedFiles:      changed,
	}, nil
}

const previewLimit = 400

func (a *Applier) collectRejects() ([]RejectedFragment, error) {
	rejects, err := a.tree.RejectFiles()
	if err != nil {
		return nil, err
	}
	var fragments []RejectedFragment
	for _, rej := range rejects {
		content, readErr := os.ReadFile(rej)
		if readErr != nil {
			a.logger.Warn("reading reject fragment", zap.String("path", rej), zap.Error(readErr))
		}
		rel, relErr := filepath.Rel(a.tree.Root(), rej)
		if relErr != nil {
			rel = rej
		}
		fragments = append(fragments, RejectedFragment{
			Path:    strings.TrimSuffix(filepath.ToSlash(rel), ".rej"),
			Preview: preview(string(content)),
		})
		if err := os.Remove(rej); err != nil {
			return nil, fmt.Errorf("removing reject artifact %s: %w", rej, err)
		}
	}
	return fragments, nil
}

func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	cut := strings.LastIndexByte(s[:previewLimit], '\n')
	if cut < 0 {
		cut = previewLimit
	}
	return s[:cut] + "\n..."
}

func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
