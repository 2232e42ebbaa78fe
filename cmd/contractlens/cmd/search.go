package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/query"
)

var (
	searchFlags   queryFlags
	searchGroupBy string
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search individual contracts",
	Long: `Search contract awards using the query syntax. Results are newest
first unless --sort is given.

Examples:
  contractlens search contractor:acme year:2020
  contractlens search '"drainage canal"' area:cebu min:1M
  contractlens search category:goods --sort total_value --limit 10
  contractlens search year:2020 --group-by area`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		var dim string
		if searchGroupBy != "" {
			d, err := dimensionArg(searchGroupBy)
			if err != nil {
				return err
			}
			dim = string(d)
		}

		p, err := searchFlags.params(args, dim, engine.Domain())
		if err != nil {
			return err
		}
		req, err := p.Request(engine.Domain(), pageLimits(), false)
		if err != nil {
			return err
		}
		res, err := engine.Search(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if searchFlags.json {
			return writeJSON(os.Stdout, res)
		}
		if len(res.Contracts) == 0 && len(res.Rows) == 0 {
			fmt.Println("No contracts found.")
			return nil
		}
		if req.Raw() {
			writeContractsTable(os.Stdout, res)
			return nil
		}
		writeAggregateTable(os.Stdout, req.Dimension, &query.AggregateResult{
			Rows:       res.Rows,
			TotalCount: res.TotalCount,
			Plan:       res.Plan,
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchFlags.register(searchCmd, true, true)
	searchCmd.Flags().StringVar(&searchGroupBy, "group-by", "", "Group matches by a dimension instead of listing contracts")
}
