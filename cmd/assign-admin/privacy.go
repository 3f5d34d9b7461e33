package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/assign-override-api/internal/models"
)

const pollInterval = 500 * time.Millisecond

func newPrivacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privacy",
		Short: "Run and inspect personal data requests",
	}
	cmd.AddCommand(newPrivacyRequestCmd(), newPrivacyStatusCmd(), newPrivacyCleanupCmd())
	return cmd
}

func newPrivacyRequestCmd() *cobra.Command {
	var (
		contextID string
		userIDs   []string
		actor     string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:       "request <delete_context|delete_user|delete_users|export>",
		Short:     "Queue a privacy request and wait for it to finish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"delete_context", "delete_user", "delete_users", "export"},
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			container.Queue.Start(ctx)

			created, err := container.Requests.Create(ctx, models.CreatePrivacyRequest{
				Type:      models.PrivacyRequestType(args[0]),
				ContextID: contextID,
				UserIDs:   userIDs,
			}, actor)
			if err != nil {
				return err
			}

			ticker := time.NewTicker(pollInterval)
			defer ticker.Stop()
			for {
				status, err := container.Requests.GetStatus(ctx, created.ID)
				if err != nil {
					return err
				}
				switch status.Status {
				case models.PrivacyRequestStatusFinished, models.PrivacyRequestStatusFailed:
					return printJSON(cmd, status)
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("request %s still %s: %w", created.ID, status.Status, ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "assignment context id")
	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "user id (repeatable)")
	cmd.Flags().StringVar(&actor, "actor", "assign-admin", "requester recorded on the request")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for completion")
	return cmd
}

func newPrivacyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Print the status of a privacy request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			defer container.Close()

			status, err := container.Requests.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newPrivacyCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove export bundles older than the configured result TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer()
			if err != nil {
				return err
			}
			defer container.Close()

			removed := container.Requests.CleanupExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired exports\n", removed)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
