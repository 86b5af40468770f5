// Command taskpilot runs the reminder daemon and manages owners, tasks and
// notification settings in its database.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskpilot/internal/config"
	"taskpilot/internal/storage"
	logx "taskpilot/pkg/logx"
)

type cli struct {
	cfgPath  string
	dbPath   string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "taskpilot",
		Short:         "Task reminders over desktop notifications and Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", "./config.yaml", "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "database path (overrides storage.path)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for management commands")

	root.AddCommand(
		c.runCmd(),
		c.ownerCmd(),
		c.taskCmd(),
		c.settingsCmd(),
		c.customCmd(),
		c.linkCmd(),
	)
	return root
}

// openStore opens the database named by --db, or by the config file.
func (c *cli) openStore() (*storage.Store, error) {
	sc := storage.Config{Path: strings.TrimSpace(c.dbPath)}
	if sc.Path == "" {
		cfg, err := config.NewManager(c.cfgPath).Load()
		if err != nil {
			return nil, fmt.Errorf("loading %s (or pass --db): %w", c.cfgPath, err)
		}
		r, err := cfg.Resolve()
		if err != nil {
			return nil, err
		}
		sc = storage.Config{Path: r.StoragePath, BusyTimeout: r.BusyTimeout}
	}
	return storage.Open(sc, logx.NewConsole(c.logLevel).With(logx.String("comp", "storage")))
}

// withStore runs fn against an open store and closes it.
func (c *cli) withStore(fn func(st *storage.Store) error) error {
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// parseDue accepts RFC3339 or "2006-01-02 15:04" in local time.
func parseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Local(), nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due %q (use RFC3339 or \"2006-01-02 15:04\")", s)
}

func requireFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return strings.TrimSpace(v), nil
}
