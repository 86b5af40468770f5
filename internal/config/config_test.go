package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

const sampleYAML = `
telegram:
  token: "123:abc"
  group_log: "-1001"
  poll_timeout: 5s
logging:
  level: debug
  console: true
  telegram:
    enabled: true
    thread_id: 7
storage:
  path: /tmp/tp.db
scheduler:
  enabled: true
  tick_interval: 30s
  ledger_policy: delivered
channels:
  desktop:
    enabled: true
    owners: [alice]
  telegram:
    enabled: true
`

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}
	if cfg.Telegram.Token != "123:abc" || !cfg.Scheduler.Enabled || cfg.Channels.Desktop.Owners[0] != "alice" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	r, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.PollTimeout != 5*time.Second || r.TickInterval != 30*time.Second {
		t.Fatalf("durations = %s/%s", r.PollTimeout, r.TickInterval)
	}
	if r.GroupLogChatID != -1001 || r.LedgerPolicy != "delivered" {
		t.Fatalf("resolved = %+v", r)
	}
	if r.LedgerRetention != DefaultLedgerRetention || r.DesktopExpire != DefaultDesktopExpire || r.TelegramRate != 20 {
		t.Fatalf("defaults not applied: %+v", r)
	}
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", `{"storage":{"path":"x.db"}}`))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "x.db" {
		t.Fatalf("path = %q", cfg.Storage.Path)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name, body, want string
	}{
		{"unknown key", "scheduler:\n  tick: 1m\n", "unknown field"},
		{"bad duration", "scheduler:\n  tick_interval: soon\n", "scheduler.tick_interval"},
		{"tick too short", "scheduler:\n  tick_interval: 200ms\n", ">= 1s"},
		{"bad policy", "scheduler:\n  ledger_policy: sometimes\n", "ledger_policy"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"log chat without target", "logging:\n  telegram:\n    enabled: true\n", "group_log"},
		{"bad group log", "telegram:\n  group_log: ops\n", "invalid chat id"},
		{"negative rate", "channels:\n  telegram:\n    rate_per_sec: -1\n", "rate_per_sec"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewManager(writeFile(t, "c.yaml", tc.body)).Parse()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestResolveReportsAllProblems(t *testing.T) {
	cfg := &Config{Scheduler: SchedulerConfig{TickInterval: "x", LedgerPolicy: "y"}}
	_, err := cfg.Resolve()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "tick_interval") || !strings.Contains(msg, "ledger_policy") {
		t.Fatalf("err = %q", msg)
	}
}

func TestResolveDefaults(t *testing.T) {
	r, err := (&Config{}).Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if r.StoragePath != DefaultStoragePath || r.TickInterval != time.Minute || r.LedgerPolicy != "attempted" {
		t.Fatalf("resolved = %+v", r)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a"}, Scheduler: SchedulerConfig{Enabled: true}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "b"},
		Scheduler: SchedulerConfig{Enabled: true, TickInterval: "30s", PersistLedger: true},
		Channels:  ChannelsConfig{Desktop: DesktopChannelConfig{Enabled: true}},
	}
	changed, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "channels,scheduler,telegram" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if strings.Join(restart, ",") != "scheduler.persist_ledger,telegram.token" {
		t.Fatalf("restart = %v", restart)
	}

	if changed, _, _ := SummarizeConfigChange(newCfg, newCfg); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	path := writeFile(t, "config.yaml", "scheduler:\n  enabled: false\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Changes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("scheduler:\n  tick_interval: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	select {
	case c := <-ch:
		t.Fatalf("invalid config published: %+v", c.New)
	default:
	}

	if err := os.WriteFile(path, []byte("scheduler:\n  enabled: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-ch:
		if !c.New.Scheduler.Enabled || c.Old.Scheduler.Enabled {
			t.Fatalf("published %+v -> %+v", c.Old.Scheduler, c.New.Scheduler)
		}
		if strings.Join(c.Sections, ",") != "scheduler" {
			t.Fatalf("sections = %v", c.Sections)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if !m.Get().Scheduler.Enabled {
		t.Fatal("Get did not follow reload")
	}
}

func TestReloadCoalescesPendingChanges(t *testing.T) {
	path := writeFile(t, "config.yaml", "storage:\n  path: a.db\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	rewrite := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := m.Reload(); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}

	// Same content: nothing to publish.
	rewrite("storage:\n  path: a.db\n")
	select {
	case c := <-m.Changes():
		t.Fatalf("unchanged file published %v", c.Sections)
	default:
	}

	// Two updates before the receiver looks merge into one.
	rewrite("storage:\n  path: b.db\n")
	rewrite("storage:\n  path: c.db\nscheduler:\n  tick_interval: 30s\n")
	select {
	case c := <-m.Changes():
		if c.Old.Storage.Path != "a.db" || c.New.Storage.Path != "c.db" {
			t.Fatalf("change spans %q -> %q", c.Old.Storage.Path, c.New.Storage.Path)
		}
		if strings.Join(c.Sections, ",") != "scheduler,storage" {
			t.Fatalf("sections = %v", c.Sections)
		}
		if strings.Join(c.Restart, ",") != "storage" {
			t.Fatalf("restart = %v", c.Restart)
		}
	default:
		t.Fatal("no change published")
	}

	// An update that is undone before delivery cancels out.
	rewrite("storage:\n  path: d.db\nscheduler:\n  tick_interval: 30s\n")
	rewrite("storage:\n  path: c.db\nscheduler:\n  tick_interval: 30s\n")
	select {
	case c := <-m.Changes():
		t.Fatalf("reverted update published %v", c.Sections)
	default:
	}
	if m.Get().Storage.Path != "c.db" {
		t.Fatalf("Get = %q", m.Get().Storage.Path)
	}

	// A rejected file keeps the committed config.
	if err := os.WriteFile(path, []byte("scheduler:\n  tick_interval: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("expected error")
	}
	if m.Get().Storage.Path != "c.db" {
		t.Fatalf("rejected reload replaced config: %q", m.Get().Storage.Path)
	}
}
