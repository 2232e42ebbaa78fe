package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/textutil"
)

var (
	buildSecondary string
	buildVersion   string
	buildEncoding  string
	buildNoPublish bool
)

var buildSnapshotCmd = &cobra.Command{
	Use:   "build-snapshot <facts.csv|facts.parquet>",
	Short: "Build and publish a snapshot from a facts file",
	Long: `Build a new snapshot version from a contracts facts file: the all-time
and per-year fact tables, per-dimension rollups for every year and quarter,
and the manifest. The new version is published by rewriting CURRENT unless
--no-publish is given; a running server picks it up on its next reload.

The facts file needs the columns reference_id, contract_number, award_title,
notice_title, awardee_name, organization_name, area_of_delivery,
business_category, contract_amount, award_date and award_status.

Examples:
  contractlens build-snapshot contracts.csv
  contractlens build-snapshot contracts.csv --secondary flood_control.csv
  contractlens build-snapshot legacy.csv --encoding auto`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !textutil.IsUTF8(buildEncoding) && buildEncoding != textutil.EncodingAuto &&
			textutil.GetEncodingByName(buildEncoding) == nil {
			return fmt.Errorf("unsupported encoding %q", buildEncoding)
		}
		if err := os.MkdirAll(cfg.Snapshot.Dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir %s: %w", cfg.Snapshot.Dir, err)
		}

		res, err := snapshot.Build(cmd.Context(), snapshot.BuildOptions{
			Source:          args[0],
			SecondarySource: buildSecondary,
			Root:            cfg.Snapshot.Dir,
			Version:         buildVersion,
			Encoding:        buildEncoding,
			Publish:         !buildNoPublish,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		m := res.Manifest
		fmt.Printf("Snapshot %s built in %s\n", m.Version, res.Duration.Round(time.Millisecond))
		fmt.Printf("  Directory: %s\n", res.Dir)
		fmt.Printf("  Domain:    %s to %s\n", m.MinDate, m.MaxDate)
		for _, b := range m.Buckets {
			if b.Key == snapshot.AllTimeBucket().Key() {
				fmt.Printf("  Contracts: %d (%s)\n", b.RowCount, formatAmount(b.TotalValue))
			}
		}
		if m.Secondary != nil {
			fmt.Printf("  Secondary: %d (%s)\n", m.Secondary.RowCount, formatAmount(m.Secondary.TotalValue))
		}
		if buildNoPublish {
			fmt.Printf("Not published. Run again without --no-publish, or write %q to %s.\n",
				m.Version, snapshot.CurrentFile)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildSnapshotCmd)
	buildSnapshotCmd.Flags().StringVar(&buildSecondary, "secondary", "", "Secondary facts file (e.g. flood-control projects)")
	buildSnapshotCmd.Flags().StringVar(&buildVersion, "version", "", "Version name (default: UTC timestamp)")
	buildSnapshotCmd.Flags().StringVar(&buildEncoding, "encoding", "", "Charset of CSV sources, or 'auto' to detect (default: UTF-8)")
	buildSnapshotCmd.Flags().BoolVar(&buildNoPublish, "no-publish", false, "Build without updating CURRENT")
}
