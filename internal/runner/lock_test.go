package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock(t *testing.T) {
	t.Run("AcquireAndRelease", func(t *testing.T) {
		dir := t.TempDir()
		lock, err := Acquire(dir, time.Hour)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(dir, lockFileName))
		require.NoError(t, err)

		require.NoError(t, lock.Release())
		_, err = os.Stat(filepath.Join(dir, lockFileName))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("SecondAcquireFails", func(t *testing.T) {
		dir := t.TempDir()
		lock, err := Acquire(dir, time.Hour)
		require.NoError(t, err)
		defer lock.Release()

		_, err = Acquire(dir, time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "holds the lock")
	})

	t.Run("StaleLockBroken", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, lockFileName)
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
		old := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(path, old, old))

		lock, err := Acquire(dir, time.Hour)
		require.NoError(t, err)
		defer lock.Release()
	})

	t.Run("ReacquireAfterRelease", func(t *testing.T) {
		dir := t.TempDir()
		lock, err := Acquire(dir, time.Hour)
		require.NoError(t, err)
		require.NoError(t, lock.Release())

		again, err := Acquire(dir, time.Hour)
		require.NoError(t, err)
		require.NoError(t, again.Release())
	})
}
