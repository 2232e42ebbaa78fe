package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/api"
	"github.com/wesm/contractlens/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled snapshot reloads",
	Long: `Run contractlens as a long-running server.

The server runs in the foreground and provides:
  - HTTP API on the configured port (default: 8080)
  - Prometheus metrics at /metrics
  - Scheduled checks for a newly published snapshot

Configure in config.toml:
  [snapshot]
  refresh_schedule = "*/5 * * * *"   # cron format; empty disables

  [server]
  api_port = 8080
  api_key = "..."                    # required for non-loopback binds

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	if err := mustBeLocal("serve"); err != nil {
		return err
	}

	engine, store, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	sched := scheduler.New().WithLogger(logger)
	scheduled, err := sched.AddSnapshotReload(cfg, store)
	if err != nil {
		return fmt.Errorf("schedule snapshot reload: %w", err)
	}
	sched.Start()

	apiServer := api.NewServer(cfg, engine, sched, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("contractlens server started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Snapshot:   %s (%s)\n", store.Current().Version(), cfg.Snapshot.Dir)
	if scheduled {
		for _, st := range sched.Status() {
			fmt.Printf("  %s: %q, next at %s\n", st.Name, st.Schedule, st.NextRun.Local().Format("2006-01-02 15:04:05"))
		}
	} else {
		fmt.Println("  Snapshot reload: disabled")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	ctx := cmd.Context()
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
	case <-time.After(30 * time.Second):
		fmt.Println("Timed out waiting for scheduled jobs.")
	}

	if runErr == nil {
		fmt.Println("Shutdown complete.")
	}
	return runErr
}
