package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCalendarCmd = &cobra.Command{
	Use:   "sync-calendar",
	Short: "Mirror the configured calendar into the schedule table once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.ensureTables(ctx); err != nil {
			return err
		}
		res, err := a.schedule.Sync(ctx)
		if err != nil {
			return err
		}
		if !res.Found {
			return fmt.Errorf("calendar %q is not configured", res.Calendar)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d events from %q (%s to %s)\n",
			res.Events, res.Calendar, res.From.Format("01/02/2006"), res.To.Format("01/02/2006"))
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the master job log and schedule tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx := cmd.Context()
		if err := a.ensureTables(ctx); err != nil {
			return err
		}
		for _, name := range a.managedTables() {
			last, err := a.db.Table(name).RowCount(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", name, last-1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Setup complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCalendarCmd, setupCmd)
}
