// Package cmd implements routinectl's command-line surface (spec §6):
// compile, run, validate. Grounded on akatz-ai-meow's cmd/meow/cmd/root.go
// for the persistent-flags-plus-subcommands shape and SilenceUsage/
// SilenceErrors posture (errors are reported once by main, not twice by
// cobra then main).
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "routinectl",
	Short:         "Compile agent traces into routines and run them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("routinectl {{.Version}}\n")
}
