package cli

import (
	"fmt"
	"time"

	"quicktestly/internal/config"
	"quicktestly/internal/domain"
	transport "quicktestly/internal/transport/http"

	"github.com/spf13/cobra"
)

// NewTokenCmd signs a development token with the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		id  domain.Identity
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if id.ID == "" {
				return fmt.Errorf("--sub is required")
			}
			token, err := transport.NewAuthenticator(cfg.Auth.JWTSecret).Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.ID, "sub", "", "user id")
	cmd.Flags().StringVar(&id.Name, "name", "", "display name")
	cmd.Flags().StringVar(&id.Email, "email", "", "email address")
	cmd.Flags().StringVar(&id.Role, "role", domain.RoleUser, "role: user or teacher")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
