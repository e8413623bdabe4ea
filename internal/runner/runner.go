// Package runner orchestrates one synchronization pass: parse the upstream
// diff, budget file contents, synthesize and validate a patch, land it, and
// open a pull request. In direct-sync mode files are reconciled without the
// synthesis step. Commits are processed strictly oldest first and the first
// failure halts the pass, preserving progress made so far.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"repobridge/internal/apply"
	"repobridge/internal/budget"
	"repobridge/internal/config"
	"repobridge/internal/diff"
	"repobridge/internal/github"
	"repobridge/internal/patch"
	"repobridge/internal/resolve"
	"repobridge/internal/state"
	"repobridge/internal/synth"
)

// emptyTreeRef is git's well-known empty tree, used to diff a root commit.
const emptyTreeRef = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Repo is the slice of version-control capability the runner needs.
type Repo interface {
	Root() string
	Fetch(ctx context.Context, remote string) error
	DiffRange(ctx context.Context, from, to string) (string, error)
	CommitsBetween(ctx context.Context, from, to string) ([]string, error)
	Show(ctx context.Context, ref, path string) (string, bool, error)
	CreateBranch(ctx context.Context, name, base string) error
	CheckoutBranch(ctx context.Context, name string) error
	DeleteBranch(ctx context.Context, name string) error
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, remote, branch string) error
}

// Synthesizer issues one prompt to the completion collaborator.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// PatchApplier lands patch text into the working tree.
type PatchApplier interface {
	Apply(ctx context.Context, patchText string) (*apply.Outcome, error)
}

// CommitResult reports what happened to one upstream commit.
type CommitResult struct {
	Commit            string
	NoOp              bool
	Branch            string
	Title             string
	PRURL             string
	Strategy          apply.Strategy
	PartiallyApplied  bool
	RejectedFragments []apply.RejectedFragment
}

// Report summarizes a pass. On failure it still lists the commits that
// landed before the halt.
type Report struct {
	RunID   string
	Results []CommitResult
}

type Runner struct {
	cfg      *config.Config
	repo     Repo
	budgeter *budget.Budgeter
	synth    Synthesizer
	applier  PatchApplier
	store    *state.Store
	gh       github.Client
	logger   *zap.Logger
}

func New(cfg *config.Config, repo Repo, budgeter *budget.Budgeter, s Synthesizer,
	applier PatchApplier, store *state.Store, gh github.Client, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		repo:     repo,
		budgeter: budgeter,
		synth:    s,
		applier:  applier,
		store:    store,
		gh:       gh,
		logger:   logger,
	}
}

// Sync runs the full pipeline over every upstream commit not yet processed.
func (r *Runner) Sync(ctx context.Context) (*Report, error) {
	return r.runPass(ctx, r.processCommit)
}

// DirectSync reconciles files commit by commit without patch synthesis,
// using the configured conflict strategy.
func (r *Runner) DirectSync(ctx context.Context) (*Report, error) {
	strategy, err := resolve.ParseStrategy(r.cfg.Conflict.Strategy)
	if err != nil {
		return nil, err
	}
	resolver := resolve.NewResolver(r.repo.Root())
	return r.runPass(ctx, func(ctx context.Context, commit string) (*CommitResult, error) {
		return r.directSyncCommit(ctx, commit, resolver, strategy)
	})
}

func (r *Runner) runPass(ctx context.Context, process func(context.Context, string) (*CommitResult, error)) (*Report, error) {
	lock, err := Acquire(r.cfg.State.Dir, r.cfg.LockTTLDuration())
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	remote := r.cfg.Upstream.Remote
	run := &state.Run{
		ID:        uuid.NewString(),
		Remote:    remote,
		StartedAt: time.Now().UTC(),
	}
	report := &Report{RunID: run.ID}

	// Progress is recorded even when the pass halts partway.
	finish := func(passErr error) (*Report, error) {
		run.FinishedAt = time.Now().UTC()
		if passErr != nil {
			run.Error = passErr.Error()
		}
		if recordErr := r.store.RecordRun(run); recordErr != nil {
			r.logger.Warn("recording run", zap.Error(recordErr))
		}
		return report, passErr
	}

	if err := r.repo.Fetch(ctx, remote); err != nil {
		return finish(err)
	}

	last, _, err := r.store.LastProcessed(remote)
	if err != nil {
		return finish(err)
	}
	upstreamRef := remote + "/" + r.cfg.Upstream.Branch
	commits, err := r.repo.CommitsBetween(ctx, last, upstreamRef)
	if err != nil {
		return finish(err)
	}
	r.logger.Info("starting pass",
		zap.String("run_id", run.ID),
		zap.String("remote", remote),
		zap.Int("pending_commits", len(commits)))

	for _, commit := range commits {
		result, err := process(ctx, commit)
		if err != nil {
			r.logger.Error("halting pass",
				zap.String("commit", commit),
				zap.Error(err))
			return finish(err)
		}
		if err := r.store.SetLastProcessed(remote, commit); err != nil {
			return finish(err)
		}
		run.Commits = append(run.Commits, commit)
		if result.PRURL != "" {
			run.PROpened = append(run.PROpened, result.PRURL)
		}
		report.Results = append(report.Results, *result)
	}

	return finish(nil)
}

func (r *Runner) processCommit(ctx context.Context, commit string) (*CommitResult, error) {
	short := shortSHA(commit)
	result := &CommitResult{Commit: commit}

	diffText, err := r.commitDiff(ctx, commit)
	if err != nil {
		return nil, err
	}
	files, err := diff.Parse(diffText)
	if err != nil {
		return nil, err
	}
	if files.Len() == 0 {
		r.logger.Info("commit touches no parseable files", zap.String("commit", short))
		result.NoOp = true
		return result, nil
	}

	candidates, err := r.gatherContents(ctx, commit, files)
	if err != nil {
		return nil, err
	}
	sel, err := r.budgeter.Select(candidates, diffText)
	if err != nil {
		return nil, err
	}
	if sel.SoftExceeded {
		r.logger.Warn("request size over soft ceiling",
			zap.String("commit", short),
			zap.Int("estimated_tokens", sel.EstimatedTokens))
	}

	raw, err := r.synth.Synthesize(ctx, synth.BuildPrompt(sel))
	if err != nil {
		return nil, err
	}
	resp := synth.ParseResponse(raw)
	patchText, err := patch.Validate(resp.PatchText, diffText)
	if err != nil {
		return nil, err
	}

	r.warnOnCollisions(ctx, files)

	title := resp.Title
	if title == "" {
		title = "Sync upstream commit " + short
	}
	branch := "sync/" + short

	if err := r.repo.CreateBranch(ctx, branch, r.cfg.Downstream.Branch); err != nil {
		return nil, err
	}
	restore := func() {
		if err := r.repo.CheckoutBranch(ctx, r.cfg.Downstream.Branch); err != nil {
			r.logger.Warn("restoring branch", zap.Error(err))
			return
		}
		if err := r.repo.DeleteBranch(ctx, branch); err != nil {
			r.logger.Warn("deleting sync branch", zap.Error(err))
		}
	}

	outcome, err := r.applier.Apply(ctx, patchText)
	if err != nil {
		restore()
		return nil, err
	}
	if len(outcome.ChangedFiles) == 0 {
		// Patch landed but changed nothing; downstream already has it.
		r.logger.Info("patch was a no-op", zap.String("commit", short))
		restore()
		result.NoOp = true
		return result, nil
	}

	if err := r.repo.Add(ctx); err != nil {
		restore()
		return nil, err
	}
	if err := r.repo.Commit(ctx, title); err != nil {
		restore()
		return nil, err
	}
	// From here the sync branch holds a good commit; on failure it is kept
	// for manual retry, but the downstream branch must be checked out so the
	// next pass starts from a sane tree.
	if err := r.repo.Push(ctx, "origin", branch); err != nil {
		r.checkoutDownstream(ctx)
		return nil, err
	}

	prURL, err := r.gh.CreatePullRequest(ctx, title, prBody(resp.Description, outcome), branch, r.cfg.Downstream.Branch)
	if err != nil {
		r.checkoutDownstream(ctx)
		return nil, err
	}
	if err := r.repo.CheckoutBranch(ctx, r.cfg.Downstream.Branch); err != nil {
		return nil, err
	}

	result.Branch = branch
	result.Title = title
	result.PRURL = prURL
	result.Strategy = outcome.StrategyUsed
	result.PartiallyApplied = outcome.PartiallyApplied
	result.RejectedFragments = outcome.RejectedFragments
	return result, nil
}

func (r *Runner) directSyncCommit(ctx context.Context, commit string, resolver *resolve.Resolver, strategy resolve.Strategy) (*CommitResult, error) {
	short := shortSHA(commit)
	result := &CommitResult{Commit: commit}

	diffText, err := r.commitDiff(ctx, commit)
	if err != nil {
		return nil, err
	}
	files, err := diff.Parse(diffText)
	if err != nil {
		return nil, err
	}
	if files.Len() == 0 {
		result.NoOp = true
		return result, nil
	}

	for _, fc := range files.Changes() {
		abs := filepath.Join(r.repo.Root(), filepath.FromSlash(fc.Path))

		if fc.Op == diff.OpDeleted {
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("removing %s: %w", fc.Path, err)
			}
			continue
		}

		incoming, ok, err := r.repo.Show(ctx, commit, fc.Path)
		if err != nil {
			return nil, err
		}
		if !ok {
			r.logger.Warn("incoming content missing at ref",
				zap.String("commit", short),
				zap.String("path", fc.Path))
			continue
		}

		var existing *string
		if content, readErr := os.ReadFile(abs); readErr == nil {
			s := string(content)
			existing = &s
		} else if !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("reading %s: %w", fc.Path, readErr)
		}

		dec, err := resolver.Resolve(fc.Path, existing, incoming, strategy)
		if err != nil {
			return nil, err
		}
		if err := resolver.Commit(dec); err != nil {
			return nil, err
		}

		// A rename leaves the old path behind; drop it.
		if fc.Op == diff.OpRenamed && fc.SourcePath != fc.Path {
			old := filepath.Join(r.repo.Root(), filepath.FromSlash(fc.SourcePath))
			if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("removing renamed source %s: %w", fc.SourcePath, err)
			}
		}
	}

	title := "Sync upstream commit " + short
	if err := r.repo.Add(ctx); err != nil {
		return nil, err
	}
	if err := r.repo.Commit(ctx, title); err != nil {
		return nil, err
	}
	if err := r.repo.Push(ctx, "origin", r.cfg.Downstream.Branch); err != nil {
		return nil, err
	}

	result.Title = title
	return result, nil
}

func (r *Runner) checkoutDownstream(ctx context.Context) {
	if err := r.repo.CheckoutBranch(ctx, r.cfg.Downstream.Branch); err != nil {
		r.logger.Warn("restoring downstream branch", zap.Error(err))
	}
}

// commitDiff diffs one commit against its parent, falling back to the empty
// tree for a root commit.
func (r *Runner) commitDiff(ctx context.Context, commit string) (string, error) {
	diffText, err := r.repo.DiffRange(ctx, commit+"^", commit)
	if err != nil {
		diffText, err = r.repo.DiffRange(ctx, emptyTreeRef, commit)
	}
	return diffText, err
}

// gatherContents reads both sides of every changed file: the upstream side at
// the commit, the downstream side at the current branch head.
func (r *Runner) gatherContents(ctx context.Context, commit string, files *diff.FileSet) ([]budget.File, error) {
	var out []budget.File
	for _, fc := range files.Changes() {
		f := budget.File{Path: fc.Path, Op: fc.Op}

		if fc.Op != diff.OpDeleted {
			after, ok, err := r.repo.Show(ctx, commit, fc.Path)
			if err != nil {
				return nil, err
			}
			if ok {
				f.After = after
			}
		}

		if fc.Op != diff.OpNew {
			before, ok, err := r.repo.Show(ctx, "HEAD", fc.Path)
			if err != nil {
				return nil, err
			}
			if !ok && fc.SourcePath != fc.Path && fc.SourcePath != diff.NullPath {
				before, ok, err = r.repo.Show(ctx, "HEAD", fc.SourcePath)
				if err != nil {
					return nil, err
				}
			}
			if ok {
				f.Before = before
			}
		}

		out = append(out, f)
	}
	return out, nil
}

// warnOnCollisions flags files already touched by an open sync PR. Best
// effort: a listing failure must not block the pipeline.
func (r *Runner) warnOnCollisions(ctx context.Context, files *diff.FileSet) {
	prs, err := r.gh.ListOpenPullRequests(ctx)
	if err != nil {
		r.logger.Warn("listing open pull requests", zap.Error(err))
		return
	}
	for _, pr := range prs {
		for _, changed := range pr.ChangedFiles {
			if files.Get(changed) != nil {
				r.logger.Warn("file already touched by an open pull request",
					zap.String("path", changed),
					zap.String("pr", pr.URL))
			}
		}
	}
}

func prBody(description string, outcome *apply.Outcome) string {
	body := description
	if outcome.PartiallyApplied {
		body += "\n\n## Rejected hunks\n\nThe following fragments did not apply and need manual attention:\n"
		for _, frag := range outcome.RejectedFragments {
			body += fmt.Sprintf("\n### %s\n\n```diff\n%s\n```\n", frag.Path, frag.Preview)
		}
	}
	return body
}

func shortSHA(commit string) string {
	if len(commit) > 10 {
		return commit[:10]
	}
	return commit
}
