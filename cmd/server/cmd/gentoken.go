package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/domain/ids"
)

var (
	gentokenSubject string
	gentokenRole    string
	gentokenEmail   string
	gentokenExpiry  time.Duration
)

var gentokenCmd = &cobra.Command{
	Use:   "gentoken",
	Short: "Mint a JWT for operations or testing",
	Long: `Mint a signed JWT using the configured secret and issuer.

Token issuance is not part of the HTTP API; this command exists for
smoke tests and operational access.

Example:
  server gentoken --subject 01JF3H7V9PZX4QK8M2T6S0RAEC --role admin --email ops@example.com`,
	RunE: runGentoken,
}

func init() {
	gentokenCmd.Flags().StringVar(&gentokenSubject, "subject", "", "user ULID the token authenticates (required)")
	gentokenCmd.Flags().StringVar(&gentokenRole, "role", "member", "role claim (member, organizer, admin)")
	gentokenCmd.Flags().StringVar(&gentokenEmail, "email", "", "email claim")
	gentokenCmd.Flags().DurationVar(&gentokenExpiry, "expiry", 0, "token lifetime (default: configured JWT expiry)")
}

func runGentoken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if !ids.IsULID(gentokenSubject) {
		return fmt.Errorf("--subject must be a user ULID")
	}
	switch auth.Role(gentokenRole) {
	case auth.RoleMember, auth.RoleOrganizer, auth.RoleAdmin:
	default:
		return fmt.Errorf("--role must be member, organizer, or admin")
	}

	expiry := cfg.Auth.JWTExpiry
	if gentokenExpiry > 0 {
		expiry = gentokenExpiry
	}

	manager := auth.NewJWTManager(cfg.Auth.JWTSecret, expiry, cfg.Auth.Issuer)
	token, err := manager.Generate(gentokenSubject, gentokenRole, gentokenEmail)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
