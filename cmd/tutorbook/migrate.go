package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply database migrations or show their status",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer shutdown(a)

			migrator, err := a.Migrator()
			if err != nil {
				return err
			}
			defer migrator.Close()

			switch action {
			case "up":
				return migrator.Run(ctx)
			case "status":
				return migrator.Status(ctx)
			}
			return fmt.Errorf("unknown action %q", action)
		},
	}
}
