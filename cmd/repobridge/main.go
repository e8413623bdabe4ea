// cmd/repobridge/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repobridge/internal/apply"
	"repobridge/internal/budget"
	"repobridge/internal/config"
	"repobridge/internal/github"
	"repobridge/internal/gitx"
	"repobridge/internal/logging"
	"repobridge/internal/runner"
	"repobridge/internal/state"
	"repobridge/internal/synth"
	"repobridge/internal/watch"
)

var (
	cfgPath string
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "repobridge",
	Short: "Repobridge keeps a downstream repository in sync with its upstream",
	Long: `Repobridge turns upstream commits into reviewable pull requests against a
downstream repository. Each commit's diff is parsed, budgeted, adapted into a
patch, and landed through a cascade of apply strategies.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		l, err := logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l.Logger
		cmd.SetContext(context.WithValue(cmd.Context(), cfgKey{}, cfg))
		return nil
	},
}

type cfgKey struct{}

func cfgFrom(cmd *cobra.Command) *config.Config {
	return cmd.Context().Value(cfgKey{}).(*config.Config)
}

type app struct {
	run   *runner.Runner
	store *state.Store
	cfg   *config.Config
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	repo, err := gitx.New(gitx.ExecRunner{}, cfg.Downstream.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	store, err := state.Open(filepath.Join(cfg.State.Dir, "db"))
	if err != nil {
		return nil, nil, err
	}

	completer, err := synth.NewGeminiCompleter(ctx, cfg.Synth.Model, cfg.GeminiAPIKey)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("creating completion client: %w", err)
	}

	budgeter := budget.NewBudgeter(budget.Limits{
		SoftTokenCeiling:  cfg.Budget.SoftTokenCeiling,
		HardTokenCeiling:  cfg.Budget.HardTokenCeiling,
		PerFileBytes:      cfg.Budget.PerFileBytes,
		FamilySampleBytes: cfg.Budget.FamilySampleBytes,
		MaxFiles:          cfg.Budget.MaxFiles,
		MaxDiffBytes:      cfg.Budget.MaxDiffBytes,
	}, nil)

	synthesizer := synth.NewSynthesizer(completer, cfg.Synth.RetryAttempts, cfg.RetryBaseDelay(), logger)
	applier := apply.NewApplier(repo, filepath.Join(cfg.State.Dir, "patches"), logger)
	gh := github.NewRESTClient(cfg.GitHub.BaseURL, cfg.GitHub.Repo, cfg.GitHub.Token)

	run := runner.New(cfg, repo, budgeter, synthesizer, applier, store, gh, logger)
	return &app{run: run, store: store, cfg: cfg}, func() { store.Close() }, nil
}

func printReport(report *runner.Report) {
	if len(report.Results) == 0 {
		fmt.Println("Nothing to sync.")
		return
	}
	for _, res := range report.Results {
		switch {
		case res.NoOp:
			color.Yellow("~ %s (no-op)", res.Commit[:10])
		case res.PRURL != "":
			color.Green("✓ %s %s", res.Commit[:10], res.Title)
			fmt.Printf("  %s (strategy: %s)\n", res.PRURL, res.Strategy)
		default:
			color.Green("✓ %s %s", res.Commit[:10], res.Title)
		}
		if res.PartiallyApplied {
			color.Red("  partially applied; %d rejected fragment(s) need attention:", len(res.RejectedFragments))
			for _, frag := range res.RejectedFragments {
				fmt.Printf("    - %s\n", frag.Path)
			}
		}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass",
		Long:  `Fetches the upstream remote and turns each unprocessed commit into a pull request.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(cmd.Context(), cfgFrom(cmd))
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := a.run.Sync(cmd.Context())
			if report != nil {
				printReport(report)
			}
			return err
		},
	}

	var directSyncCmd = &cobra.Command{
		Use:   "direct-sync",
		Short: "Sync files directly, without patch synthesis",
		Long: `Copies upstream file contents into the downstream tree, reconciling
conflicts with the configured strategy (overwrite, keep, backup, merge).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(cmd.Context(), cfgFrom(cmd))
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := a.run.DirectSync(cmd.Context())
			if report != nil {
				printReport(report)
			}
			return err
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show sync bookkeeping",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := cfgFrom(cmd)
			store, err := state.Open(filepath.Join(cfg.State.Dir, "db"))
			if err != nil {
				return err
			}
			defer store.Close()

			last, ok, err := store.LastProcessed(cfg.Upstream.Remote)
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("Last processed commit on %s: %s\n", cfg.Upstream.Remote, last)
			} else {
				fmt.Printf("No commits processed yet on %s.\n", cfg.Upstream.Remote)
			}

			runs, err := store.Runs()
			if err != nil {
				return err
			}
			show := runs
			if len(show) > 10 {
				show = show[len(show)-10:]
			}
			for _, run := range show {
				status := color.GreenString("ok")
				if run.Error != "" {
					status = color.RedString("failed: %s", run.Error)
				}
				fmt.Printf("%s  %s  %d commit(s)  %s\n",
					run.StartedAt.Format(time.RFC3339), run.ID[:8], len(run.Commits), status)
			}
			return nil
		},
	}

	var debounce time.Duration
	var watchCmd = &cobra.Command{
		Use:   "watch [mirror-dir]",
		Short: "Watch an upstream mirror and sync on change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(cmd.Context(), cfgFrom(cmd))
			if err != nil {
				return err
			}
			defer cleanup()

			w, err := watch.New(debounce, func(ctx context.Context) {
				report, err := a.run.Sync(ctx)
				if report != nil {
					printReport(report)
				}
				if err != nil {
					color.Red("sync failed: %v", err)
				}
			}, logger)
			if err != nil {
				return err
			}
			fmt.Println("Watching", args[0])
			return w.Watch(cmd.Context(), args[0])
		},
	}
	watchCmd.Flags().DurationVar(&debounce, "debounce", 5*time.Second, "quiet period before a triggered sync")

	rootCmd.AddCommand(syncCmd, directSyncCmd, statusCmd, watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
