package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taskpilot/internal/model"
	"taskpilot/internal/storage"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}
	cmd.AddCommand(c.taskAddCmd(), c.taskListCmd(), c.taskEditCmd(), c.taskDoneCmd(), c.taskRmCmd())
	return cmd
}

func (c *cli) taskAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task and print its id",
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
			desc, _ := cmd.Flags().GetString("desc")
			prio, _ := cmd.Flags().GetString("priority")
			t := model.Task{OwnerID: owner, Title: title, Description: desc}
			if t.Priority, err = model.ParsePriority(prio); err != nil {
				return err
			}
			if due, _ := cmd.Flags().GetString("due"); due != "" {
				at, err := parseDue(due)
				if err != nil {
					return err
				}
				t.DueAt = &at
			}
			return c.withStore(func(st *storage.Store) error {
				created, err := st.CreateTask(cmd.Context(), t)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), created.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("owner", "", "owner id")
	cmd.Flags().String("title", "", "task title")
	cmd.Flags().String("desc", "", "description")
	cmd.Flags().String("due", "", `due time, RFC3339 or "2006-01-02 15:04"`)
	cmd.Flags().String("priority", "medium", "low, medium or high")
	return cmd
}

func (c *cli) taskListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's tasks (open only unless --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := requireFlag(cmd, "owner")
			if err != nil {
				return err
			}
			var q model.TaskQuery
			if !all {
				open := false
				q.Completed = &open
			}
			return c.withStore(func(st *storage.Store) error {
				tasks, err := st.QueryTasks(cmd.Context(), owner, q)
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tDUE\tPRIORITY\tDONE\tTITLE")
				for _, t := range tasks {
					due := "-"
					if t.HasDue() {
						due = t.DueAt.Format("2006-01-02 15:04")
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", t.ID, due, t.Priority, t.Completed, t.Title)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("owner", "", "owner id")
	cmd.Flags().BoolVar(&all, "all", false, "include completed tasks")
	return cmd
}

func (c *cli) taskEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a task; a new due time re-arms its reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *storage.Store) error {
				t, err := st.GetTask(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				f := cmd.Flags()
				if f.Changed("title") {
					t.Title, _ = f.GetString("title")
				}
				if f.Changed("desc") {
					t.Description, _ = f.GetString("desc")
				}
				if f.Changed("priority") {
					p, _ := f.GetString("priority")
					if t.Priority, err = model.ParsePriority(p); err != nil {
						return err
					}
				}
				if clearDue, _ := f.GetBool("clear-due"); clearDue {
					t.DueAt = nil
				} else if f.Changed("due") {
					raw, _ := f.GetString("due")
					at, err := parseDue(raw)
					if err != nil {
						return err
					}
					t.DueAt = &at
				}
				_, err = st.UpdateTask(cmd.Context(), t)
				return err
			})
		},
	}
	cmd.Flags().String("title", "", "task title")
	cmd.Flags().String("desc", "", "description")
	cmd.Flags().String("due", "", `due time, RFC3339 or "2006-01-02 15:04"`)
	cmd.Flags().Bool("clear-due", false, "remove the due time")
	cmd.Flags().String("priority", "", "low, medium or high")
	cmd.MarkFlagsMutuallyExclusive("due", "clear-due")
	return cmd
}

func (c *cli) taskDoneCmd() *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done ID",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *storage.Store) error {
				return st.SetCompleted(cmd.Context(), args[0], !undo)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "reopen the task")
	return cmd
}

func (c *cli) taskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *storage.Store) error {
				return st.DeleteTask(cmd.Context(), args[0])
			})
		},
	}
}
