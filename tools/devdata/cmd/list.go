package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/tools/devdata/dataset"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot versions",
	Long:  "Shows the snapshot versions under the snapshot root, newest first, with their date range, row counts and size. The published version is marked with *.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	root, err := snapshotRoot()
	if err != nil {
		return err
	}
	versions, err := dataset.ListVersions(root)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintf(os.Stderr, "devdata: no snapshot versions under %s\n", root)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CURRENT\tVERSION\tRANGE\tROWS\tSECONDARY\tSIZE")
	for _, v := range versions {
		mark := " "
		if v.Current {
			mark = "*"
		}
		rng, rows, secondary := "(incomplete)", "-", "-"
		if v.Complete {
			rng = v.MinDate + ".." + v.MaxDate
			rows = fmt.Sprint(v.Rows)
			if v.Secondary > 0 {
				secondary = fmt.Sprint(v.Secondary)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, v.Version, rng, rows, secondary, formatSize(v.Size))
	}
	return w.Flush()
}
