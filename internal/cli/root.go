// Package cli implements the wpbench CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	log     = logrus.New()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "wpbench",
	Short: "Evaluate memory write policies under a byte budget",
	Long:  "wpbench runs WritePolicyBench: streaming write-policy evaluation with byte-accurate accounting and reproducible scoring.",
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
