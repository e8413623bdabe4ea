// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config is constructed once at process start and passed by injection into
// every component. Nothing in the pipeline reads configuration globally.
type Config struct {
	Upstream struct {
		Remote string `json:"remote"`
		Branch string `json:"branch"`
	} `json:"upstream"`

	Downstream struct {
		Path   string `json:"path"`
		Branch string `json:"branch"`
	} `json:"downstream"`

	Budget struct {
		SoftTokenCeiling  int `json:"soft_token_ceiling"`
		HardTokenCeiling  int `json:"hard_token_ceiling"`
		PerFileBytes      int `json:"per_file_bytes"`
		FamilySampleBytes int `json:"family_sample_bytes"`
		MaxFiles          int `json:"max_files"`
		MaxDiffBytes      int `json:"max_diff_bytes"`
	} `json:"budget"`

	Synth struct {
		Model          string `json:"model"`
		RetryAttempts  int    `json:"retry_attempts"`
		RetryBaseDelay string `json:"retry_base_delay"` // e.g. "2s"
	} `json:"synth"`

	Conflict struct {
		Strategy string `json:"strategy"` // overwrite, keep, backup, merge
	} `json:"conflict"`

	GitHub struct {
		Repo    string `json:"repo"` // owner/name
		BaseURL string `json:"base_url"`
		Token   string `json:"-"` // from env only
	} `json:"github"`

	State struct {
		Dir string `json:"dir"`
	} `json:"state"`

	LockTTL  string `json:"lock_ttl"`
	LogLevel string `json:"log_level"` // debug, info, warn, error

	GeminiAPIKey string `json:"-"`
}

// Default returns a Config with every tunable set to a sensible value.
func Default() *Config {
	cfg := &Config{}
	cfg.Upstream.Remote = "upstream"
	cfg.Upstream.Branch = "main"
	cfg.Downstream.Branch = "main"
	cfg.Budget.SoftTokenCeiling = 60000
	cfg.Budget.HardTokenCeiling = 100000
	cfg.Budget.PerFileBytes = 48 * 1024
	cfg.Budget.FamilySampleBytes = 2 * 1024
	cfg.Budget.MaxFiles = 20
	cfg.Budget.MaxDiffBytes = 96 * 1024
	cfg.Synth.Model = "gemini-2.0-flash"
	cfg.Synth.RetryAttempts = 4
	cfg.Synth.RetryBaseDelay = "2s"
	cfg.Conflict.Strategy = "backup"
	cfg.GitHub.BaseURL = "https://api.github.com"
	cfg.LockTTL = "30m"
	cfg.LogLevel = "info"
	return cfg
}

// Load reads a JSON config file and overlays secrets from the environment.
// A .env file next to the process is honored when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding config: %w", err)
		}
	}

	// Best effort; secrets may come from the real environment instead.
	_ = godotenv.Load()

	cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if cfg.State.Dir == "" && cfg.Downstream.Path != "" {
		cfg.State.Dir = cfg.Downstream.Path + "/.repobridge"
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.Budget.HardTokenCeiling < c.Budget.SoftTokenCeiling {
		return fmt.Errorf("hard token ceiling %d below soft ceiling %d",
			c.Budget.HardTokenCeiling, c.Budget.SoftTokenCeiling)
	}
	if c.Synth.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Synth.RetryAttempts)
	}
	if _, err := time.ParseDuration(c.Synth.RetryBaseDelay); err != nil {
		return fmt.Errorf("invalid retry base delay %q: %w", c.Synth.RetryBaseDelay, err)
	}
	if _, err := time.ParseDuration(c.LockTTL); err != nil {
		return fmt.Errorf("invalid lock TTL %q: %w", c.LockTTL, err)
	}
	return nil
}

func (c *Config) RetryBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.Synth.RetryBaseDelay)
	return d
}

func (c *Config) LockTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTTL)
	return d
}
