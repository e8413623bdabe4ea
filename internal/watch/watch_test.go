package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".git/objects/ab", "src/pkg", "node_modules/lib", ".repobridge/patches"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	w, err := New(time.Second, func(context.Context) {}, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	require.NoError(t, w.register(root))

	watched := w.watcher.WatchList()
	assert.Contains(t, watched, root)
	assert.Contains(t, watched, filepath.Join(root, "src"))
	assert.Contains(t, watched, filepath.Join(root, "src/pkg"))
	for _, p := range watched {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		rel = filepath.ToSlash(rel)
		// git object churn and build output must never arm the debounce.
		assert.NotContains(t, rel, ".git")
		assert.NotContains(t, rel, "node_modules")
		assert.NotContains(t, rel, ".repobridge")
	}
}
