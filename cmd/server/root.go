package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command. Running it without a subcommand starts the server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authgate",
		Short: "authgate - username/password authentication gateway",
		Long: `authgate registers accounts, checks credentials and issues
server-side sessions over a small JSON API.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitDBCmd())
	cmd.AddCommand(NewUserAddCmd())

	return cmd
}
