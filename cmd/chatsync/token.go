package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatsync/internal/security"
)

func newTokenCmd(configPath *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bridge access token for the configured account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.TokenSecret == "" {
				return fmt.Errorf("CHATSYNC_TOKEN_SECRET is required")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			tok, err := security.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL).CreateWithTTL(cfg.AccountID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to the configured TTL)")
	return cmd
}
