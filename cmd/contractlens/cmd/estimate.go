package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/export"
)

var (
	estimateFlags   queryFlags
	estimateGroupBy string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [query...]",
	Short: "Estimate the size of an export",
	Long: `Count the rows an export would produce and estimate its CSV size,
without writing anything.

Examples:
  contractlens estimate year:2020
  contractlens estimate --group-by contractor --rank 1-500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		var dim string
		if estimateGroupBy != "" {
			d, err := dimensionArg(estimateGroupBy)
			if err != nil {
				return err
			}
			dim = string(d)
		}
		p, err := estimateFlags.params(args, dim, engine.Domain())
		if err != nil {
			return err
		}
		req, err := p.Request(engine.Domain(), pageLimits(), true)
		if err != nil {
			return err
		}
		est, err := export.EstimateExport(cmd.Context(), engine, req, exportWidths())
		if err != nil {
			return fmt.Errorf("estimate: %w", err)
		}

		if estimateFlags.json {
			return writeJSON(os.Stdout, map[string]any{
				"row_count":       est.RowCount,
				"estimated_bytes": est.Bytes,
				"columns":         est.Header,
			})
		}
		fmt.Printf("Rows:           %d\n", est.RowCount)
		fmt.Printf("Estimated size: %s\n", formatBytes(est.Bytes))
		return nil
	},
}

// formatBytes renders n in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(estimateCmd)
	estimateFlags.register(estimateCmd, false, true)
	estimateCmd.Flags().StringVar(&estimateGroupBy, "group-by", "", "Estimate an aggregate export grouped by this dimension")
}
