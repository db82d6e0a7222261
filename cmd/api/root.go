package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the gatekeeper CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Identity and access-control service",
		Long: `gatekeeper registers users, verifies their email and phone with
one-time codes, issues PIN-based sessions and authorizes API requests.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
