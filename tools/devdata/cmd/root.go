package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/config"
)

var (
	homeFlag      string
	configFlag    string
	snapshotsFlag string
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "devdata",
	Short: "Manage contractlens snapshot versions for development",
	Long: `devdata generates synthetic contract snapshots and manages the versions
under a contractlens snapshot root: listing them, switching which one is
published and pruning old ones. A running server picks up a switch on its
next snapshot reload.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeFlag, "home", "", "contractlens home directory (default: $CONTRACTLENS_HOME or ~/.contractlens)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file path (default: <home>/config.toml)")
	rootCmd.PersistentFlags().StringVar(&snapshotsFlag, "snapshots", "", "snapshot root, overriding [snapshot] dir")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log snapshot build progress")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// snapshotRoot resolves the snapshot root the same way contractlens does,
// unless --snapshots overrides it.
func snapshotRoot() (string, error) {
	if snapshotsFlag != "" {
		return snapshotsFlag, nil
	}
	cfg, err := config.Load(configFlag, homeFlag)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Snapshot.Dir, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
