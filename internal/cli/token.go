package cli

import (
	"errors"
	"fmt"
	"time"

	"studyhub/portal/internal/api"
	"studyhub/portal/internal/config"
	"studyhub/portal/internal/domain"

	"github.com/spf13/cobra"
)

func newTokenCmd(configDir *string) *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if r != domain.RoleAdmin && r != domain.RoleStudent {
				return fmt.Errorf("role must be %q or %q", domain.RoleAdmin, domain.RoleStudent)
			}
			cfg, err := config.LoadConfig(*configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := api.IssueToken(cfg.Auth.JWTSecret, domain.Identity{UserID: userID, UserName: name, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "uid", "", "user id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStudent), "admin or student")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newHashAdminKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-key <key>",
		Short: "Print the bcrypt hash to store in auth.admin_key_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("key is empty")
			}
			hashed, err := api.HashAdminKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return nil
		},
	}
}
