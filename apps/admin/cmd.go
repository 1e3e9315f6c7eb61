package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/eventsoft/eventsoft/core/event"
	"github.com/eventsoft/eventsoft/core/invitation"
	"github.com/eventsoft/eventsoft/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db          *sql.DB
	usrRepo     user.Repository
	users       *user.Service
	events      *event.Service
	invitations *invitation.Service
	out         io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "EventSoft administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.output())
	root.AddCommand(
		cli.migrateCmd(),
		cli.createSuperAdminCmd(),
		cli.resetPasswordCmd(),
		cli.finalizeCmd(),
		cli.archiveCmd(),
		cli.issueCodeCmd(),
	)
	return root
}

// run executes the command named in args; args[0] is the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args[1:])
	return root.Execute()
}

func (cli *commandLine) output() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.output(), format, args...)
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	cli.printf("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	cli.printf("\n")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func requireFlag(cmd *cobra.Command, values ...string) error {
	for _, v := range values {
		if v == "" {
			_ = cmd.Usage()
			return errHelp
		}
	}
	return nil
}
