package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-production-goals/internal/http/middleware"
	"github.com/tbourn/go-production-goals/internal/sysutil"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	User   string
	Name   string
	Admin  bool
	TTL    time.Duration
	Secret string
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long: `Mint an HS256 bearer token signed with JWT_SECRET (or --secret).

Intended for development and operations; production identities come from
the identity provider that shares the secret.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := sysutil.FirstNonEmpty(opts.Secret, os.Getenv("JWT_SECRET"))
			if secret == "" {
				return errors.New("no signing secret: set JWT_SECRET or pass --secret")
			}
			role := ""
			if opts.Admin {
				role = middleware.RoleAdmin
			}
			tok, err := middleware.IssueToken(secret, opts.User, opts.Name, role, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&opts.Admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
