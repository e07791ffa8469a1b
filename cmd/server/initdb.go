package main

import (
	"github.com/spf13/cobra"
)

// NewInitDBCmd creates the initdb subcommand.
func NewInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database tables and exit",
		Long:  `Create the users and sessions tables if they do not exist. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cmd.Printf("initialized database at %s\n", cfg.Database.Path)
			return nil
		},
	}
}
