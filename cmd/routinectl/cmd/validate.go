package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracelace/routine/pkg/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <routine-dir>",
	Short: "Statically check a routine package without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir := args[0]
	errs := loader.Validate(dir)
	if len(errs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", dir)
		return nil
	}
	for _, err := range errs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", dir, err)
	}
	return fmt.Errorf("%d issue(s) found", len(errs))
}
