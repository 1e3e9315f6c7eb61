package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (cli *commandLine) issueCodeCmd() *cobra.Command {
	var (
		issuer string
		email  string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issuecode",
		Short: "Issue an event administrator invitation code, optionally mailing it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(cmd, issuer); err != nil {
				return err
			}
			ctx := context.Background()
			usr, err := cli.users.GetByUsernameOrEmail(ctx, issuer)
			if err != nil {
				return err
			}
			p, err := cli.users.PrincipalOf(ctx, usr)
			if err != nil {
				return errors.Wrap(err, "getting principal")
			}
			c, err := cli.invitations.Issue(ctx, p, ttl)
			if err != nil {
				return err
			}
			if email != "" {
				if c, err = cli.invitations.Dispatch(ctx, p, c.Code, email); err != nil {
					return err
				}
			}
			cli.printf("%s (expires %s)\n", c.Code, c.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "Username or email of the issuing superadmin.")
	cmd.Flags().StringVar(&email, "email", "", "Mail the code to this address.")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Validity of the code; defaults to the configured invitation TTL.")
	return cmd
}
