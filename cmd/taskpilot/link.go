package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskpilot/internal/storage"
)

func (c *cli) linkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "link", Short: "Link Telegram chats to owners"}

	code := &cobra.Command{
		Use:   "code",
		Short: "Issue a one-time code to redeem with /connect in the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			return c.withStore(func(st *storage.Store) error {
				code, expires, err := st.IssueLinkCode(cmd.Context(), owner, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "/connect %s\n(valid until %s)\n", code, expires.Format("15:04"))
				return nil
			})
		},
	}
	code.Flags().String("owner", "", "owner id")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show an owner's linked chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			return c.withStore(func(st *storage.Store) error {
				l, ok, err := st.ChatLinkForOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "not linked")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "chat %d (@%s), reminders %s, linked %s\n",
					l.ChatID, l.Username, onOff(l.Enabled), l.LinkedAt.Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	show.Flags().String("owner", "", "owner id")

	cmd.AddCommand(code, show)
	return cmd
}
