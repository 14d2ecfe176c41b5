package cli

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/crate-auction/internal/utils"
)

// NewTokenCommand mints an access token for local development and smoke
// tests.  Production tokens come from the identity provider.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		role   string
		ttl    time.Duration
		secret string
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a signed access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("no signing secret: pass --secret or set JWT_SECRET")
			}
			role = strings.ToUpper(role)
			if role != "USER" && role != "ADMIN" {
				return errors.New("role must be USER or ADMIN")
			}
			tok, err := utils.NewAccessToken(secret, args[0], role, ttl)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts, tok, func(w io.Writer) {
				fprintf(w, "%s\n", tok.Token)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "USER", "role claim (USER or ADMIN)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $JWT_SECRET)")
	return cmd
}

// NewHashSecretCommand prints the bcrypt hash to put in CRON_TOKEN_HASH.
func NewHashSecretCommand(rootOpts *RootOptions) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-secret <token>",
		Short: "Hash a cron token for CRON_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := utils.HashSecret(args[0], cost)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts, map[string]string{"hash": hash}, func(w io.Writer) {
				fprintf(w, "%s\n", hash)
			})
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}
