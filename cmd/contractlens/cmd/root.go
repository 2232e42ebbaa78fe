package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/config"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contractlens",
	Short: "Procurement contract analytics over snapshot rollups",
	Long: `contractlens answers filtered aggregation questions over public
procurement contracts: top contractors, organizations, areas and categories
by value, drill-downs, raw contract search and CSV exports.

Queries read an immutable Parquet snapshot built with 'build-snapshot'.
Whole-year and whole-quarter questions are answered from precomputed
rollups; everything else scans the fact tables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// --home is passed through so it influences where config.toml is
		// loaded from, like CONTRACTLENS_HOME.
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openEngine opens the configured snapshot store and a DuckDB engine over
// it. The caller closes the engine.
func openEngine() (*query.DuckDBEngine, *snapshot.Store, error) {
	store, err := snapshot.OpenStore(cfg.Snapshot.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot: %w (run 'contractlens build-snapshot' first)", err)
	}
	engine, err := query.NewDuckDBEngine(store, query.Options{
		Timeout:            cfg.Query.Timeout.Std(),
		MaxConcurrentReads: cfg.Query.MaxConcurrentReads,
		Threads:            cfg.Query.Threads,
		Logger:             logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return engine, store, nil
}

func pageLimits() filter.Limits {
	return filter.Limits{Default: cfg.Query.DefaultPageSize, Max: cfg.Query.MaxPageSize}
}

func exportWidths() export.Widths {
	return export.Widths{Raw: cfg.Export.RawRowWidth, Aggregate: cfg.Export.AggregateRowWidth}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.contractlens/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides CONTRACTLENS_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&useLocal, "local", false, "query the local snapshot even when [remote] url is set")
}
