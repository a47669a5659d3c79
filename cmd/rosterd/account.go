package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/config"
)

func newAccountCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts allowed to authenticate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var password string
	add := &cobra.Command{
		Use:   "add JID",
		Short: "Add an account or change its password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := jid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid jid %q: %w", args[0], err)
			}
			if j.Localpart() == "" {
				return fmt.Errorf("account jid %s has no localpart", j)
			}

			path, err := config.AccountsPath(root.configPath)
			if err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(path)
			if err != nil {
				return err
			}
			if err := accounts.SetPassword(j.Bare().String(), password); err != nil {
				return err
			}
			if err := config.SaveAccounts(path, accounts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s to %s\n", j.Bare(), path)
			return nil
		},
	}
	add.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.AccountsPath(root.configPath)
			if err != nil {
				return err
			}
			accounts, err := config.LoadAccounts(path)
			if err != nil {
				return err
			}
			for _, acc := range accounts.Accounts {
				fmt.Fprintln(cmd.OutOrStdout(), acc.JID)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
