package main

import (
	"fmt"

	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/service"
	"github.com/spf13/cobra"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage identity records",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		username   string
		roles      []string
		telegramID int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user for local setups",
		Long: `Create a user. Identity normally comes from the upstream auth service;
this command exists for local development and tests.

Examples:
  tutorbook user add --username alice --role tutor
  tutorbook user add --username bob --role student --telegram-id 123456`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer shutdown(a)

			in := service.CreateUserInput{Username: username}
			for _, r := range roles {
				in.Roles = append(in.Roles, model.Role(r))
			}
			if cmd.Flags().Changed("telegram-id") {
				in.TelegramID = &telegramID
			}

			user, err := a.Users.CreateUser(ctx, in)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User name")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"student"}, "Role: student or tutor (repeatable)")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram chat ID for notifications")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
