package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/assign-override-api/internal/app"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	var (
		userID       string
		email        string
		capabilities []string
	)
	issue := &cobra.Command{
		Use:     "issue",
		Short:   "Print a signed access token for a user",
		Example: "assign-admin token issue --user 42 --capability mod/assign:manageoverrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := loadConfig()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			token, expiresAt, err := app.NewTokenService(cfg.JWT).Issue(userID, email, capabilities)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "user id the token is issued to")
	issue.Flags().StringVar(&email, "email", "", "optional email claim")
	issue.Flags().StringSliceVar(&capabilities, "capability", nil, "capability to grant (repeatable)")
	_ = issue.MarkFlagRequired("user")

	cmd.AddCommand(issue)
	return cmd
}
