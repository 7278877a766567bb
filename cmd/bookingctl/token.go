package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appconfig "github.com/wolfman30/booking-platform/internal/config"
	httpmiddleware "github.com/wolfman30/booking-platform/internal/http/middleware"
)

func newTokenCmd() *cobra.Command {
	var (
		tenantID   string
		role       string
		providerID string
		clientID   string
		subject    string
		ttl        time.Duration
	)
	c := &cobra.Command{
		Use:   "token",
		Short: "Mint a caller token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := appconfig.Load().AdminJWTSecret
			if secret == "" {
				return errors.New("ADMIN_JWT_SECRET is required")
			}
			caller, err := httpmiddleware.CallerClaims{
				TenantID:   tenantID,
				Role:       role,
				ProviderID: providerID,
				ClientID:   clientID,
			}.Caller()
			if err != nil {
				return fmt.Errorf("invalid caller: %w", err)
			}
			if subject != "" {
				caller.UserID, err = parseUUID("subject", subject)
				if err != nil {
					return err
				}
			}
			token, err := httpmiddleware.IssueCallerToken(secret, caller, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	c.Flags().StringVar(&tenantID, "tenant", "", "tenant id (required)")
	c.Flags().StringVar(&role, "role", "owner", "owner, admin, provider or client")
	c.Flags().StringVar(&providerID, "provider", "", "provider id, for the provider role")
	c.Flags().StringVar(&clientID, "client", "", "client id, for the client role")
	c.Flags().StringVar(&subject, "subject", "", "user id recorded as the token subject")
	c.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = c.MarkFlagRequired("tenant")
	return c
}
