package cmd

import (
	"context"
	"fmt"

	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/remote"
)

var useLocal bool

// IsRemoteMode returns true if queries should go to a remote server.
// Resolution order:
//  1. --local flag → always local
//  2. [remote].url set in config → use remote
//  3. Default → use the local snapshot
func IsRemoteMode() bool {
	if useLocal {
		return false
	}
	return cfg != nil && cfg.Remote.URL != ""
}

// openQueryEngine returns either a local DuckDB engine or a remote
// engine based on configuration. The caller closes it.
func openQueryEngine(ctx context.Context) (query.Engine, error) {
	if IsRemoteMode() {
		return openRemoteEngine(ctx)
	}
	engine, _, err := openEngine()
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// openRemoteEngine connects to the configured server.
func openRemoteEngine(ctx context.Context) (*remote.Engine, error) {
	engine, err := remote.NewEngine(ctx, remote.Config{
		URL:           cfg.Remote.URL,
		APIKey:        cfg.Remote.APIKey,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       cfg.Remote.Timeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("open remote engine: %w", err)
	}
	logger.Debug("using remote engine", "url", cfg.Remote.URL)
	return engine, nil
}

// mustBeLocal returns an error if remote mode is active.
// Use this for commands that only work with a local snapshot.
func mustBeLocal(cmdName string) error {
	if IsRemoteMode() {
		return fmt.Errorf("%s requires a local snapshot\n\n"+
			"This command cannot run against a remote server.\n"+
			"Use the --local flag to force the local snapshot.", cmdName)
	}
	return nil
}
