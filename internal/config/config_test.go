package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "upstream", cfg.Upstream.Remote)
		assert.Equal(t, 2*time.Second, cfg.RetryBaseDelay())
		assert.Equal(t, 30*time.Minute, cfg.LockTTLDuration())
	})

	t.Run("FileOverlaysDefaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"upstream": {"remote": "origin-upstream", "branch": "develop"},
			"downstream": {"path": "`+dir+`"},
			"budget": {"soft_token_ceiling": 1000, "hard_token_ceiling": 2000},
			"conflict": {"strategy": "merge"}
		}`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "origin-upstream", cfg.Upstream.Remote)
		assert.Equal(t, "develop", cfg.Upstream.Branch)
		assert.Equal(t, 1000, cfg.Budget.SoftTokenCeiling)
		assert.Equal(t, "merge", cfg.Conflict.Strategy)
		assert.Equal(t, "main", cfg.Downstream.Branch, "unset fields keep defaults")
		assert.Equal(t, filepath.Join(dir, ".repobridge"), filepath.FromSlash(cfg.State.Dir))
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("HardCeilingBelowSoft", func(t *testing.T) {
		cfg := Default()
		cfg.Budget.SoftTokenCeiling = 5000
		cfg.Budget.HardTokenCeiling = 1000
		assert.Error(t, cfg.Validate())
	})

	t.Run("BadRetryDelay", func(t *testing.T) {
		cfg := Default()
		cfg.Synth.RetryBaseDelay = "soon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ZeroRetryAttempts", func(t *testing.T) {
		cfg := Default()
		cfg.Synth.RetryAttempts = 0
		assert.Error(t, cfg.Validate())
	})
}
