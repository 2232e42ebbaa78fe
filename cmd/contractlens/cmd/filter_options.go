package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	optionsPrefix string
	optionsLimit  int
	optionsJSON   bool
)

var filterOptionsCmd = &cobra.Command{
	Use:   "filter-options <dimension>",
	Short: "List entity names of a dimension",
	Long: `List the distinct entity names of a dimension, largest total value
first, for use in contractor:, organization:, area: and category: filters.

Examples:
  contractlens filter-options contractor --prefix acme
  contractlens filter-options area -n 200 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := dimensionArg(args[0])
		if err != nil {
			return err
		}
		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		limit := optionsLimit
		if limit <= 0 || limit > cfg.Query.MaxPageSize {
			limit = cfg.Query.DefaultPageSize
		}
		opts, err := engine.FilterOptions(cmd.Context(), d, optionsPrefix, limit)
		if err != nil {
			return fmt.Errorf("filter options: %w", err)
		}
		if optionsJSON {
			return writeJSON(os.Stdout, opts)
		}
		if len(opts) == 0 {
			fmt.Println("No matching names.")
			return nil
		}
		writeOptionsTable(os.Stdout, d, opts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filterOptionsCmd)
	filterOptionsCmd.Flags().StringVar(&optionsPrefix, "prefix", "", "Only names starting with this text (case-insensitive)")
	filterOptionsCmd.Flags().IntVarP(&optionsLimit, "limit", "n", 0, "Maximum number of names (default from config)")
	filterOptionsCmd.Flags().BoolVar(&optionsJSON, "json", false, "Output as JSON")
}
