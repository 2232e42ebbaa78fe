package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var aggFlags queryFlags

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <dimension> [query...]",
	Short: "Rank entities by contract value",
	Long: `Group contracts by a dimension and rank the entities.

Dimensions: contractor, organization, area, category (aliases such as
awardee or business_category also work).

The query uses the search syntax:
  contractor:"ACME CORP"   organization:dpwh   area:cebu   category:goods
  year:2020   quarter:2021-q3   after:2020-06-01   before:2020-12-31
  min:1M   max:500K   secondary:true
Bare words and "quoted phrases" match award and notice titles.

Examples:
  contractlens aggregate contractor year:2020
  contractlens aggregate organization contractor:acme --sort count
  contractlens aggregate area year:2021 --rank 101-200 --json`,
	Args: cobra.MinimumNArgs(1),
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

		p, err := aggFlags.params(args[1:], string(d), engine.Domain())
		if err != nil {
			return err
		}
		req, err := p.Request(engine.Domain(), pageLimits(), false)
		if err != nil {
			return err
		}
		res, err := engine.Aggregate(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("aggregate by %s: %w", d, err)
		}

		if aggFlags.json {
			return writeJSON(os.Stdout, res)
		}
		if len(res.Rows) == 0 {
			fmt.Println("No contracts match.")
			return nil
		}
		writeAggregateTable(os.Stdout, d, res)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggFlags.register(aggregateCmd, true, true)
}
