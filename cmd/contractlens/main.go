package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/wesm/contractlens/cmd/contractlens/cmd"
	"github.com/wesm/contractlens/internal/query"
)

const (
	exitCodeError       = 1
	exitCodeInterrupted = 130 // 128 + SIGINT, mirrors shell convention
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		if isSignalCanceled(err, ctx) {
			return exitCodeInterrupted
		}
		return exitCodeError
	}
	return 0
}

// isSignalCanceled reports whether err is the result of a signal stopping
// the command, including an export that was cut short.
func isSignalCanceled(err error, ctx context.Context) bool {
	if ctx.Err() != context.Canceled {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, query.ErrCancelled)
}
