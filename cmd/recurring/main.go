package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recurring",
		Short:         "Operate the recurring invoice generation engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newRunCmd(),
		newMigrateCmd(),
		newPreviewCmd(),
	)
	return root
}
