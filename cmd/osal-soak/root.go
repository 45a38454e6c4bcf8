package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "osal-soak",
		Short: "Soak test the OS abstraction layer",
		Long: `osal-soak runs a fleet of periodic workers, each on its own OS thread,
sharing named recursive locks, for a fixed duration. Workers may be configured
to fault, or to violate the lock order, to exercise fault capture and teardown.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd(), newConfigCmd())
	return rootCmd
}
