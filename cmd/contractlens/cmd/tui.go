package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse contract aggregates in an interactive terminal UI",
	Long: `Open an interactive terminal UI over the current snapshot.

The TUI ranks contractors, organizations, areas and categories by total
contract value. Drill into a row to rank the entities of another dimension
that share contracts with it, then list the contracts behind the pair.

Navigation:
  ↑/k, ↓/j    Move up/down
  PgUp/PgDn   Page up/down
  Enter       Drill down / list contracts / show details
  a           List the contracts behind a row
  Esc         Go back
  g/Tab       Cycle grouping dimension
  s           Cycle sort field
  r           Reverse sort direction
  t           Cycle year
  x           Include the secondary dataset
  /           Search (same syntax as 'contractlens search')
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fd := os.Stdout.Fd()
		if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			return errors.New("tui requires an interactive terminal")
		}

		engine, err := openQueryEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer engine.Close()

		if err := tui.Run(cmd.Context(), engine, tui.Options{Version: Version}); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
