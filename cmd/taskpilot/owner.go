package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskpilot/internal/storage"
)

func (c *cli) ownerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "owner", Short: "Manage owners"}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create an owner and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(st *storage.Store) error {
				o, err := st.CreateOwner(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), o.ID)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(func(st *storage.Store) error {
				owners, err := st.Owners(cmd.Context())
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tNAME\tCREATED")
				for _, o := range owners {
					fmt.Fprintf(w, "%s\t%s\t%s\n", o.ID, o.Name, o.CreatedAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	})
	return cmd
}
