// Command producer-agent is the process entry point: it builds the
// CLI and executes it. All behavior lives in internal/cli.
package main

import (
	"fmt"
	"os"

	"github.com/bitsky-io/producer-agent/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
