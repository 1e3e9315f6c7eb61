package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/user"
)

func (cli *commandLine) createSuperAdminCmd() *cobra.Command {
	var uname, email, nationalID string
	cmd := &cobra.Command{
		Use:   "createsuperadmin",
		Short: "Create a superadmin, or promote and reactivate an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(cmd, uname, email, nationalID); err != nil {
				return err
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.createSuperAdmin(uname, email, nationalID, pwd)
			if err != nil {
				return err
			}
			cli.printf("superadmin %s ready\n", usr.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&uname, "username", "", "The superadmin's username.")
	cmd.Flags().StringVar(&email, "email", "", "The superadmin's email.")
	cmd.Flags().StringVar(&nationalID, "national-id", "", "The superadmin's national ID.")
	return cmd
}

// createSuperAdmin updates or creates a superadmin user.User
func (cli *commandLine) createSuperAdmin(uname, email, nationalID, pwd string) (user.User, error) {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	nationalID = core.CleanString(nationalID)
	if err := core.CheckVar("email", email, "required,email"); err != nil {
		return user.User{}, err
	}
	if err := core.CheckVar("national_id", nationalID, "required,nationalid"); err != nil {
		return user.User{}, err
	}

	now := core.Now()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{
			Username:   uname,
			Email:      email,
			NationalID: nationalID,
			GivenName:  uname,
			CreatedAt:  now,
		}
	}
	usr.Role = user.RoleSuperAdmin
	usr.IsSuperAdmin = true
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	if exists {
		return cli.usrRepo.UpdateUser(ctx, usr)
	}
	return cli.usrRepo.CreateUser(ctx, usr)
}
