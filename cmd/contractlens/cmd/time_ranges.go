package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/query"
)

var timeRangesJSON bool

var timeRangesCmd = &cobra.Command{
	Use:   "time-ranges",
	Short: "List the years and quarters covered by the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		var engine query.Engine
		source := cfg.Remote.URL
		if IsRemoteMode() {
			re, err := openRemoteEngine(cmd.Context())
			if err != nil {
				return err
			}
			engine = re
		} else {
			local, store, err := openEngine()
			if err != nil {
				return err
			}
			engine = local
			source = "snapshot " + store.Current().Version()
		}
		defer engine.Close()

		tr, err := engine.TimeRanges(cmd.Context())
		if err != nil {
			return fmt.Errorf("time ranges: %w", err)
		}
		if timeRangesJSON {
			return writeJSON(os.Stdout, tr)
		}
		fmt.Printf("Source: %s\n", source)
		writePeriodsTable(os.Stdout, tr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(timeRangesCmd)
	timeRangesCmd.Flags().BoolVar(&timeRangesJSON, "json", false, "Output as JSON")
}
