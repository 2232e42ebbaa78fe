package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/tools/devdata/dataset"
)

var useCmd = &cobra.Command{
	Use:   "use <version>",
	Short: "Publish an existing snapshot version",
	Long:  "Atomically rewrites CURRENT under the snapshot root to name version.",
	Args:  cobra.ExactArgs(1),
	RunE:  runUse,
}

func init() {
	rootCmd.AddCommand(useCmd)
}

func runUse(cmd *cobra.Command, args []string) error {
	version := args[0]
	root, err := snapshotRoot()
	if err != nil {
		return err
	}

	if dataset.CurrentVersion(root) == version {
		fmt.Fprintf(os.Stderr, "devdata: %s is already published\n", version)
		return nil
	}

	if err := dataset.Use(root, version); err != nil {
		versions, _ := dataset.ListVersions(root)
		var names []string
		for _, v := range versions {
			if v.Complete {
				names = append(names, v.Version)
			}
		}
		if len(names) > 0 {
			return fmt.Errorf("%w; available versions: %s", err, strings.Join(names, ", "))
		}
		return err
	}

	fmt.Fprintf(os.Stderr, "devdata: published %s; a running server picks it up on its next reload\n", version)
	return nil
}
