package main

import (
	"github.com/spf13/cobra"

	"github.com/eventsoft/eventsoft/storage/database"
)

var migrateRunFunc = database.RunMigration // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARG]",
		Short: "Run database migrations: up, down, steps N, goto V, force V or version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return migrateRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}
