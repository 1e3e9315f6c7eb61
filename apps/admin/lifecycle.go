package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/eventsoft/eventsoft/core"
	"github.com/eventsoft/eventsoft/core/event"
)

// finalizeCmd and archiveCmd run the lifecycle sweeps once, outside the API's scheduler.
func (cli *commandLine) finalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize",
		Short: "Finalize every active event that has ended",
		RunE: func(*cobra.Command, []string) error {
			done, err := cli.events.FinalizeEnded(context.Background())
			cli.report("finalized", done)
			return err
		},
	}
}

func (cli *commandLine) archiveCmd() *cobra.Command {
	graceDays := core.Conf.Lifecycle.GraceDays
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive finalized events past the grace period",
		RunE: func(*cobra.Command, []string) error {
			done, err := cli.events.ArchiveDue(context.Background(), graceDays)
			cli.report("archived", done)
			return err
		},
	}
	cmd.Flags().IntVar(&graceDays, "grace-days", graceDays, "Days an event stays finalized before it is archived.")
	return cmd
}

func (cli *commandLine) report(action string, events []event.Event) {
	for _, e := range events {
		cli.printf("%s %s (%s)\n", action, e.Name, e.ID)
	}
	cli.printf("%d event(s) %s\n", len(events), action)
}
