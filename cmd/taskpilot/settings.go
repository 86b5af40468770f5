package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"taskpilot/internal/model"
	"taskpilot/internal/reminder"
	"taskpilot/internal/storage"
)

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Show or change notification settings"}
	cmd.AddCommand(c.settingsShowCmd(), c.settingsSetCmd())
	return cmd
}

func (c *cli) settingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an owner's settings and the next scheduled summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			return c.withStore(func(st *storage.Store) error {
				s, err := st.GetSettings(cmd.Context(), owner)
				if err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), s, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().String("owner", "", "owner id")
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printSettings(w io.Writer, s model.NotificationSettings, now time.Time) {
	fmt.Fprintf(w, "task due:  %s, %d min before\n", onOff(s.TaskDue.Enabled), s.TaskDue.LeadMinutes)
	fmt.Fprintf(w, "daily:     %s at %s\n", onOff(s.DailySummary.Enabled), s.DailySummary.Time)
	fmt.Fprintf(w, "weekly:    %s on %s at %s\n", onOff(s.WeeklySummary.Enabled),
		time.Weekday(s.WeeklySummary.DayOfWeek), s.WeeklySummary.Time)
	fmt.Fprintf(w, "monthly:   %s on day %d at %s\n", onOff(s.MonthlySummary.Enabled),
		s.MonthlySummary.DayOfMonth, s.MonthlySummary.Time)
	if len(s.Custom) > 0 {
		fmt.Fprintln(w, "custom:")
		for _, cn := range s.Custom {
			fmt.Fprintf(w, "  %s  %s  %s: %s\n", cn.ID, cn.Time, cn.Title, cn.Message)
		}
	}
	if next := reminder.Preview(s, now); len(next) > 0 {
		fmt.Fprintln(w, "next:")
		for _, u := range next {
			fmt.Fprintf(w, "  %s  %s\n", u.At.Format("Mon 2006-01-02 15:04"), u.Label)
		}
	}
}

func (c *cli) settingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings; only the given flags are modified",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			return c.withStore(func(st *storage.Store) error {
				if _, err := st.GetOwner(cmd.Context(), owner); err != nil {
					return err
				}
				s, err := st.GetSettings(cmd.Context(), owner)
				if err != nil {
					return err
				}
				applySettingFlags(cmd, &s)
				if err := st.PutSettings(cmd.Context(), owner, s); err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), s, time.Now())
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("owner", "", "owner id")
	f.Bool("due", true, "task due reminders")
	f.Int("lead", model.DefaultLeadMinutes, "minutes before due (5-60)")
	f.Bool("daily", false, "daily summary")
	f.String("daily-time", "", "daily summary time HH:MM")
	f.Bool("weekly", false, "weekly summary")
	f.Int("weekly-day", 1, "weekly summary day, 0=Sunday")
	f.String("weekly-time", "", "weekly summary time HH:MM")
	f.Bool("monthly", false, "monthly summary")
	f.Int("monthly-day", 1, "monthly summary day of month (1-28)")
	f.String("monthly-time", "", "monthly summary time HH:MM")
	return cmd
}

func applySettingFlags(cmd *cobra.Command, s *model.NotificationSettings) {
	f := cmd.Flags()
	boolFlag := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	intFlag := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	strFlag := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolFlag("due", &s.TaskDue.Enabled)
	intFlag("lead", &s.TaskDue.LeadMinutes)
	boolFlag("daily", &s.DailySummary.Enabled)
	strFlag("daily-time", &s.DailySummary.Time)
	boolFlag("weekly", &s.WeeklySummary.Enabled)
	intFlag("weekly-day", &s.WeeklySummary.DayOfWeek)
	strFlag("weekly-time", &s.WeeklySummary.Time)
	boolFlag("monthly", &s.MonthlySummary.Enabled)
	intFlag("monthly-day", &s.MonthlySummary.DayOfMonth)
	strFlag("monthly-time", &s.MonthlySummary.Time)
}
