package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"taskpilot/internal/model"
	"taskpilot/internal/storage"
)

func (c *cli) customCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "custom", Short: "Manage daily custom notifications"}

	add := &cobra.Command{
		Use:   "add",
		Short: "Append a custom notification and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			title, err := requireFlag(cmd, "title")
			if err != nil {
				return err
			}
			at, err := requireFlag(cmd, "time")
			if err != nil {
				return err
			}
			msg, _ := cmd.Flags().GetString("message")
			cn := model.CustomNotification{
				ID:      strings.ReplaceAll(uuid.New().String(), "-", "")[:8],
				Title:   title,
				Message: msg,
				Time:    at,
			}
			return c.updateSettings(cmd, owner, func(s *model.NotificationSettings) error {
				s.Custom = append(s.Custom, cn)
				return nil
			}, cn.ID)
		},
	}
	add.Flags().String("owner", "", "owner id")
	add.Flags().String("title", "", "notification title")
	add.Flags().String("message", "", "notification body")
	add.Flags().String("time", "", "time of day HH:MM")

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a custom notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			return c.updateSettings(cmd, owner, func(s *model.NotificationSettings) error {
				for i, cn := range s.Custom {
					if cn.ID == args[0] {
						s.Custom = append(s.Custom[:i], s.Custom[i+1:]...)
						return nil
					}
				}
				return fmt.Errorf("custom notification %s: %w", args[0], storage.ErrNotFound)
			}, "")
		},
	}
	rm.Flags().String("owner", "", "owner id")

	cmd.AddCommand(add, rm)
	return cmd
}

// updateSettings loads, edits and saves an owner's settings, printing out
// when it is not empty.
func (c *cli) updateSettings(cmd *cobra.Command, owner string, edit func(*model.NotificationSettings) error, out string) error {
	return c.withStore(func(st *storage.Store) error {
		if _, err := st.GetOwner(cmd.Context(), owner); err != nil {
			return err
		}
		s, err := st.GetSettings(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if err := edit(&s); err != nil {
			return err
		}
		if err := st.PutSettings(cmd.Context(), owner, s); err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return nil
	})
}
