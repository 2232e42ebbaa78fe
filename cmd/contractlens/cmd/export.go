package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/fileutil"
	"github.com/wesm/contractlens/internal/query"
)

var (
	exportFlags   queryFlags
	exportGroupBy string
	exportOutput  string
)

var exportCmd = &cobra.Command{
	Use:   "export [query...]",
	Short: "Export matching contracts or rankings as CSV",
	Long: `Stream matching contracts, or a ranking grouped by a dimension, as
CSV. Output goes to stdout unless --output is given. Progress is shown on
stderr when it is a terminal.

Examples:
  contractlens export year:2020 -o contracts-2020.csv
  contractlens export --group-by contractor --rank 101-600 -o ranks.csv
  contractlens export area:cebu min:1M > cebu.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		var dim string
		if exportGroupBy != "" {
			d, err := dimensionArg(exportGroupBy)
			if err != nil {
				return err
			}
			dim = string(d)
		}
		p, err := exportFlags.params(args, dim, engine.Domain())
		if err != nil {
			return err
		}
		req, err := p.Request(engine.Domain(), pageLimits(), true)
		if err != nil {
			return err
		}
		req = query.Pin(engine, req)

		ctx := cmd.Context()
		est, err := export.EstimateExport(ctx, engine, req, exportWidths())
		if err != nil {
			return fmt.Errorf("estimate: %w", err)
		}

		var out io.Writer = os.Stdout
		if exportOutput != "" && exportOutput != "-" {
			f, err := fileutil.CreateOutput(exportOutput)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			out = f
		}
		bw := bufio.NewWriterSize(out, 256<<10)

		job := export.NewJobs().Start(req, *est)
		var progress export.Progress
		if stderrIsTerminal() {
			progress = newProgressPrinter(os.Stderr, time.Now())
		}

		start := time.Now()
		n, streamErr := export.NewStreamer(engine, cfg.Export.BatchSize, logger).Stream(ctx, job, bw, progress)
		flushErr := bw.Flush()
		if progress != nil {
			fmt.Fprintln(os.Stderr)
		}
		if streamErr != nil {
			var cerr *query.CancelledError
			if errors.As(streamErr, &cerr) {
				fmt.Fprintf(os.Stderr, "Export cancelled after %d rows.\n", cerr.RowsEmitted)
			}
			return streamErr
		}
		if flushErr != nil {
			return fmt.Errorf("write output: %w", flushErr)
		}
		if exportOutput != "" && exportOutput != "-" {
			fmt.Fprintf(os.Stderr, "Exported %d rows to %s in %s\n",
				n, exportOutput, time.Since(start).Round(time.Millisecond))
		}
		return nil
	},
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newProgressPrinter returns a Progress that redraws one status line on w.
func newProgressPrinter(w io.Writer, start time.Time) export.Progress {
	return func(emitted, estimated int64) {
		elapsed := time.Since(start).Seconds()
		rate := 0.0
		if elapsed > 0 {
			rate = float64(emitted) / elapsed
		}
		if estimated > 0 {
			pct := float64(emitted) * 100 / float64(estimated)
			fmt.Fprintf(w, "\r  %d / %d rows (%.0f%%), %.0f rows/s   ", emitted, estimated, pct, rate)
			return
		}
		fmt.Fprintf(w, "\r  %d rows, %.0f rows/s   ", emitted, rate)
	}
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportFlags.register(exportCmd, false, false)
	exportCmd.Flags().StringVar(&exportGroupBy, "group-by", "", "Export a ranking grouped by this dimension")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
}
