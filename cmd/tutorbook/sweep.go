package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var reminders bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Complete elapsed sessions once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer shutdown(a)

			a.Start(ctx)

			completed, err := a.Sessions.RunAutoCompleteSweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d session(s)\n", completed)

			if reminders {
				sent, err := a.Sessions.SendReminders(ctx, a.Config.ReminderLead)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reminded %d session(s)\n", sent)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reminders, "reminders", false, "Also send due session reminders")
	return cmd
}
