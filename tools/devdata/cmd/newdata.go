package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/tools/devdata/dataset"
)

var (
	newDataRowFlag         int
	newDataSecondaryFlag   int
	newDataFromYearFlag    int
	newDataToYearFlag      int
	newDataContractorsFlag int
	newDataSeedFlag        uint64
	newDataVersionFlag     string
	newDataNoPublish       bool
	newDataDryRun          bool
)

var newDataCmd = &cobra.Command{
	Use:   "new-data",
	Short: "Build a snapshot version from N synthetic contracts",
	Long: `Generates contract records with a long-tailed contractor distribution and
builds them into a new snapshot version under the snapshot root. The new
version is published unless --no-publish is given; use "devdata use" to
switch later.`,
	Args: cobra.NoArgs,
	RunE: runNewData,
}

func init() {
	newDataCmd.Flags().IntVar(&newDataRowFlag, "rows", 0, "number of contracts to generate (required)")
	newDataCmd.Flags().IntVar(&newDataSecondaryFlag, "secondary-rows", 0, "number of secondary dataset contracts (0 skips it)")
	newDataCmd.Flags().IntVar(&newDataFromYearFlag, "from-year", 0, "first award year (default: four years ago)")
	newDataCmd.Flags().IntVar(&newDataToYearFlag, "to-year", 0, "last award year (default: this year)")
	newDataCmd.Flags().IntVar(&newDataContractorsFlag, "contractors", 0, "distinct contractors (default: rows/20)")
	newDataCmd.Flags().Uint64Var(&newDataSeedFlag, "seed", 1, "random seed")
	newDataCmd.Flags().StringVar(&newDataVersionFlag, "version", "", "snapshot version name (default: UTC timestamp)")
	newDataCmd.Flags().BoolVar(&newDataNoPublish, "no-publish", false, "build without pointing CURRENT at the new version")
	newDataCmd.Flags().BoolVar(&newDataDryRun, "dry-run", false, "show what would be generated without writing")
	_ = newDataCmd.MarkFlagRequired("rows")
	rootCmd.AddCommand(newDataCmd)
}

func runNewData(cmd *cobra.Command, args []string) error {
	if newDataRowFlag <= 0 {
		return fmt.Errorf("--rows must be a positive integer, got %d", newDataRowFlag)
	}
	if newDataSecondaryFlag < 0 {
		return fmt.Errorf("--secondary-rows must not be negative, got %d", newDataSecondaryFlag)
	}
	if newDataVersionFlag != "" {
		if err := dataset.ValidateVersion(newDataVersionFlag); err != nil {
			return fmt.Errorf("invalid --version: %w", err)
		}
	}

	root, err := snapshotRoot()
	if err != nil {
		return err
	}

	if newDataDryRun {
		fmt.Fprintf(os.Stdout, "Snapshot root: %s\n", root)
		fmt.Fprintf(os.Stdout, "Contracts:     %d (seed %d)\n", newDataRowFlag, newDataSeedFlag)
		if newDataSecondaryFlag > 0 {
			fmt.Fprintf(os.Stdout, "Secondary:     %d\n", newDataSecondaryFlag)
		}
		fmt.Fprintf(os.Stdout, "Publish:       %v\n", !newDataNoPublish)
		fmt.Fprintf(os.Stderr, "devdata: dry run, no changes made\n")
		return nil
	}

	opts := dataset.CreateOptions{
		GenerateOptions: dataset.GenerateOptions{
			Rows:        newDataRowFlag,
			FromYear:    newDataFromYearFlag,
			ToYear:      newDataToYearFlag,
			Contractors: newDataContractorsFlag,
			Seed:        newDataSeedFlag,
		},
		SecondaryRows: newDataSecondaryFlag,
		Version:       newDataVersionFlag,
		Publish:       !newDataNoPublish,
		Logger:        newLogger(),
	}

	fmt.Fprintf(os.Stderr, "devdata: generating %d contracts into %s...\n", newDataRowFlag, root)
	result, err := dataset.Create(cmd.Context(), root, opts)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	state := "published"
	if newDataNoPublish {
		state = "not published"
	}
	fmt.Fprintf(os.Stderr, "devdata: built %s in %s (%s)\n", result.Manifest.Version, result.Elapsed.Round(time.Millisecond), state)
	fmt.Fprintf(os.Stdout, "Contracts:     %d\n", result.Primary.Rows)
	fmt.Fprintf(os.Stdout, "Total value:   %s\n", result.Primary.Total.StringFixed(2))
	if result.Secondary != nil {
		fmt.Fprintf(os.Stdout, "Secondary:     %d\n", result.Secondary.Rows)
	}
	fmt.Fprintf(os.Stdout, "Snapshot:      %s (%s to %s)\n", result.Manifest.Version, result.Manifest.MinDate, result.Manifest.MaxDate)
	fmt.Fprintf(os.Stdout, "Snapshot size: %s\n", formatSize(result.Size))
	return nil
}
