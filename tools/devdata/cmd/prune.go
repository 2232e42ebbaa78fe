package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/tools/devdata/dataset"
)

var (
	pruneKeepFlag   int
	pruneDryRunFlag bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old snapshot versions",
	Long:  "Keeps the published version and the --keep newest other versions, and deletes the rest along with any incomplete builds.",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeepFlag, "keep", 2, "number of unpublished versions to keep")
	pruneCmd.Flags().BoolVar(&pruneDryRunFlag, "dry-run", false, "list what would be deleted without deleting")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	root, err := snapshotRoot()
	if err != nil {
		return err
	}
	removed, err := dataset.Prune(root, pruneKeepFlag, pruneDryRunFlag)
	if err != nil {
		return err
	}

	verb := "deleted"
	if pruneDryRunFlag {
		verb = "would delete"
	}
	var freed int64
	for _, v := range removed {
		fmt.Fprintf(os.Stdout, "%s %s (%s)\n", verb, v.Version, formatSize(v.Size))
		freed += v.Size
	}
	fmt.Fprintf(os.Stderr, "devdata: %s %d versions, %s\n", verb, len(removed), formatSize(freed))
	return nil
}
