// Package cmd defines the smartmerge command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "smartmerge",
	Short: "Merge and clean multiple CSV/Excel files",
	Long: `smartmerge folds any number of CSV or Excel files into a single
table through successive left joins on user-chosen key columns.

Run "smartmerge serve" to start the interactive HTTP service, or
"smartmerge merge" to run a whole merge chain headlessly from the
command line.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
