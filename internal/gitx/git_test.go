package gitx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobridge/internal/errors"
)

// scriptRunner records every command and replies from a canned script.
type scriptRunner struct {
	calls   [][]string
	replies map[string]string
	fail    map[string]error
}

func (r *scriptRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	r.calls = append(r.calls, args)
	key := strings.Join(args, " ")
	if err, ok := r.fail[key]; ok {
		return "", err
	}
	return r.replies[key], nil
}

func newGit(t *testing.T, runner Runner) *Git {
	g, err := New(runner, "/repo", nil)
	require.NoError(t, err)
	return g
}

func TestGit(t *testing.T) {
	t.Run("CommitsBetweenOldestFirst", func(t *testing.T) {
		runner := &scriptRunner{replies: map[string]string{
			"git rev-list --reverse a..upstream/main": "c1\nc2\nc3\n",
		}}
		g := newGit(t, runner)

		commits, err := g.CommitsBetween(context.Background(), "a", "upstream/main")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2", "c3"}, commits)
	})

	t.Run("CommitsBetweenWithoutBase", func(t *testing.T) {
		runner := &scriptRunner{replies: map[string]string{
			"git rev-list --reverse upstream/main": "c1\n",
		}}
		g := newGit(t, runner)

		commits, err := g.CommitsBetween(context.Background(), "", "upstream/main")
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, commits)
	})

	t.Run("ShowCachesContent", func(t *testing.T) {
		runner := &scriptRunner{replies: map[string]string{
			"git show abc:f.txt": "content",
		}}
		g := newGit(t, runner)

		for i := 0; i < 3; i++ {
			content, ok, err := g.Show(context.Background(), "abc", "f.txt")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "content", content)
		}
		assert.Len(t, runner.calls, 1, "repeat reads come from the cache")
	})

	t.Run("ShowMissingPath", func(t *testing.T) {
		runner := &scriptRunner{fail: map[string]error{
			"git show abc:gone.txt": errors.Git("command failed",
				map[string]any{"stderr": "fatal: path 'gone.txt' does not exist in 'abc'"}, nil),
		}}
		g := newGit(t, runner)

		_, ok, err := g.Show(context.Background(), "abc", "gone.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ApplyModeArgs", func(t *testing.T) {
		runner := &scriptRunner{}
		g := newGit(t, runner)

		for _, mode := range []ApplyMode{ApplyThreeWay, ApplyReject, ApplyWhitespaceFix, ApplyPlain} {
			require.NoError(t, g.Apply(context.Background(), "/tmp/p.patch", mode))
		}

		require.Len(t, runner.calls, 4)
		assert.Equal(t, []string{"git", "apply", "--3way", "--whitespace=nowarn", "/tmp/p.patch"}, runner.calls[0])
		assert.Equal(t, []string{"git", "apply", "--reject", "/tmp/p.patch"}, runner.calls[1])
		assert.Equal(t, []string{"git", "apply", "--whitespace=fix", "/tmp/p.patch"}, runner.calls[2])
		assert.Equal(t, []string{"git", "apply", "/tmp/p.patch"}, runner.calls[3])
	})

	t.Run("ResetDiscardsTrackedAndUntracked", func(t *testing.T) {
		runner := &scriptRunner{}
		g := newGit(t, runner)

		require.NoError(t, g.Reset(context.Background()))
		require.Len(t, runner.calls, 2)
		assert.Equal(t, []string{"git", "checkout", "--", "."}, runner.calls[0])
		assert.Equal(t, []string{"git", "clean", "-fd"}, runner.calls[1])
	})

	t.Run("ChangedFilesParsesPorcelain", func(t *testing.T) {
		runner := &scriptRunner{replies: map[string]string{
			"git status --porcelain": " M src/a.go\n?? new.txt\nR  old.txt -> renamed.txt\n",
		}}
		g := newGit(t, runner)

		files, err := g.ChangedFiles(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"src/a.go", "new.txt", "renamed.txt"}, files)
	})
}

func TestExecRunnerRejectsEmptyCommand(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), ".")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindGit))
}
