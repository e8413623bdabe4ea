package gitx

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"repobridge/internal/errors"
)

// ApplyMode selects the tolerance level for a patch application.
type ApplyMode int

const (
	ApplyThreeWay ApplyMode = iota
	ApplyReject
	ApplyWhitespaceFix
	ApplyPlain
)

func (m ApplyMode) args(patchPath string) []string {
	switch m {
	case ApplyThreeWay:
		return []string{"git", "apply", "--3way", "--whitespace=nowarn", patchPath}
	case ApplyReject:
		return []string{"git", "apply", "--reject", patchPath}
	case ApplyWhitespaceFix:
		return []string{"git", "apply", "--whitespace=fix", patchPath}
	default:
		return []string{"git", "apply", patchPath}
	}
}

const showCacheSize = 256

// Git exposes the primitive version-control capabilities the pipeline needs
// over one working tree. Blob reads via Show are cached: budgeting reads the
// same ref:path pairs for both trees repeatedly within a pass.
type Git struct {
	runner    Runner
	dir       string
	showCache *lru.Cache[string, string]
	logger    *zap.Logger
}

func New(runner Runner, dir string, logger *zap.Logger) (*Git, error) {
	cache, err := lru.New[string, string](showCacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Git{runner: runner, dir: dir, showCache: cache, logger: logger}, nil
}

// Root returns the working tree directory.
func (g *Git) Root() string {
	return g.dir
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	return g.runner.Run(ctx, g.dir, args...)
}

func (g *Git) Fetch(ctx context.Context, remote string) error {
	_, err := g.run(ctx, "git", "fetch", remote)
	return err
}

// DiffRange returns the unified diff between two refs.
func (g *Git) DiffRange(ctx context.Context, from, to string) (string, error) {
	return g.run(ctx, "git", "diff", from, to)
}

// CommitsBetween lists commits reachable from `to` but not `from`, oldest
// first. An empty `from` lists everything up to `to`.
func (g *Git) CommitsBetween(ctx context.Context, from, to string) ([]string, error) {
	rangeSpec := to
	if from != "" {
		rangeSpec = from + ".." + to
	}
	out, err := g.run(ctx, "git", "rev-list", "--reverse", rangeSpec)
	if err != nil {
		return nil, err
	}
	var commits []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			commits = append(commits, line)
		}
	}
	return commits, nil
}

// Show returns file content at a ref. The second return is false when the
// path does not exist on that side.
func (g *Git) Show(ctx context.Context, ref, path string) (string, bool, error) {
	key := ref + ":" + path
	if content, ok := g.showCache.Get(key); ok {
		return content, true, nil
	}

	out, err := g.run(ctx, "git", "show", key)
	if err != nil {
		if stderr, _ := errors.Detail(err, "stderr").(string); strings.Contains(stderr, "does not exist") ||
			strings.Contains(stderr, "exists on disk, but not in") ||
			strings.Contains(stderr, "invalid object name") {
			return "", false, nil
		}
		return "", false, err
	}

	g.showCache.Add(key, out)
	return out, true, nil
}

func (g *Git) CreateBranch(ctx context.Context, name, base string) error {
	_, err := g.run(ctx, "git", "checkout", "-b", name, base)
	return err
}

func (g *Git) CheckoutBranch(ctx context.Context, name string) error {
	_, err := g.run(ctx, "git", "checkout", name)
	return err
}

func (g *Git) DeleteBranch(ctx context.Context, name string) error {
	_, err := g.run(ctx, "git", "branch", "-D", name)
	return err
}

func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{"-A"}
	}
	_, err := g.run(ctx, append([]string{"git", "add"}, paths...)...)
	return err
}

func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, "git", "commit", "-m", message)
	return err
}

func (g *Git) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "git", "push", "-u", remote, branch)
	return err
}

// Reset discards uncommitted changes to tracked files and removes untracked
// files and directories, returning the working tree to HEAD.
func (g *Git) Reset(ctx context.Context) error {
	if _, err := g.run(ctx, "git", "checkout", "--", "."); err != nil {
		return err
	}
	_, err := g.run(ctx, "git", "clean", "-fd")
	return err
}

// Apply applies a patch file with the given tolerance mode.
func (g *Git) Apply(ctx context.Context, patchPath string, mode ApplyMode) error {
	_, err := g.run(ctx, mode.args(patchPath)...)
	return err
}

// ChangedFiles lists paths that differ from HEAD (staged, unstaged and
// untracked), from `git status --porcelain`.
func (g *Git) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "git", "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		p := strings.TrimSpace(line[3:])
		// Rename entries read "old -> new"; the destination is what changed.
		if idx := strings.Index(p, " -> "); idx >= 0 {
			p = p[idx+4:]
		}
		files = append(files, strings.Trim(p, `"`))
	}
	return files, nil
}

// RejectFiles walks the working tree for *.rej artifacts left by a
// reject-tolerant apply.
func (g *Git) RejectFiles() ([]string, error) {
	var rejects []string
	err := filepath.Walk(g.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".rej") {
			rejects = append(rejects, path)
		}
		return nil
	})
	return rejects, err
}
