// Command devdata generates and manages contractlens snapshot versions for development.
package main

import (
	"fmt"
	"os"

	"github.com/wesm/contractlens/tools/devdata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "devdata: %v\n", err)
		os.Exit(1)
	}
}
