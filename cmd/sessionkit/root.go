package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sessionkit",
		Short:         "Session token tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
