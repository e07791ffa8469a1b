package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type userAddConfig struct {
	username string
	password string
	role     string
}

// NewUserAddCmd creates the useradd subcommand.
func NewUserAddCmd() *cobra.Command {
	cfg := &userAddConfig{}

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserAdd(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.username, "username", "", "account username")
	cmd.Flags().StringVar(&cfg.password, "password", "", "account password")
	cmd.Flags().StringVar(&cfg.role, "role", "", "account role (default employee)")

	return cmd
}

func runUserAdd(cmd *cobra.Command, flags *userAddConfig) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.auth.Register(cmd.Context(), flags.username, flags.password, flags.role)
	if err != nil {
		return oops.Code("USERADD_FAILED").With("username", flags.username).Wrap(err)
	}

	cmd.Printf("created user %s (id %d, role %s)\n", user.Username, user.ID, user.Role)
	return nil
}
