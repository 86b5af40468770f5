package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskpilot/internal/model"
	"taskpilot/internal/notify"
	"taskpilot/internal/notify/channel"
	"taskpilot/internal/reminder"
	logx "taskpilot/pkg/logx"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "nested", "taskpilot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustOwner(t *testing.T, s *Store, name string) model.Owner {
	t.Helper()
	o, err := s.CreateOwner(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	return o
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskpilot.db")
	for i := 0; i < 2; i++ {
		s, err := Open(Config{Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		var v int
		if err := s.db.Get(&v, "SELECT MAX(version) FROM schema_version"); err != nil {
			t.Fatalf("schema_version: %v", err)
		}
		if v != len(migrations) {
			t.Fatalf("version = %d, want %d", v, len(migrations))
		}
		_ = s.Close()
	}
}

func TestOwners(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := mustOwner(t, s, "alice")
	mustOwner(t, s, "bob")

	ids, err := s.ListOwners(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("ListOwners = %v, %v", ids, err)
	}
	got, err := s.GetOwner(ctx, a.ID)
	if err != nil || got.Name != "alice" {
		t.Fatalf("GetOwner = %+v, %v", got, err)
	}
	if _, err := s.GetOwner(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetOwner(missing) err = %v", err)
	}
	if _, err := s.CreateOwner(ctx, "  "); err == nil {
		t.Fatalf("blank owner name accepted")
	}
}

func TestQueryTasksInclusiveWindow(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	o := mustOwner(t, s, "alice")
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local)

	mk := func(title string, due *time.Time, done bool) model.Task {
		t.Helper()
		tk, err := s.CreateTask(ctx, model.Task{OwnerID: o.ID, Title: title, DueAt: due, Completed: done})
		if err != nil {
			t.Fatalf("CreateTask(%s): %v", title, err)
		}
		return tk
	}
	at := func(d time.Duration) *time.Time { v := base.Add(d); return &v }

	mk("lower", at(-15*time.Minute), false)
	mk("upper", at(0), false)
	mk("outside", at(time.Minute), false)
	mk("done", at(-5*time.Minute), true)
	mk("undated", nil, false)

	open := false
	got, err := s.QueryTasks(ctx, o.ID, model.TaskQuery{Completed: &open, DueAfter: base.Add(-15 * time.Minute), DueBefore: base})
	if err != nil {
		t.Fatalf("QueryTasks: %v", err)
	}
	var titles []string
	for _, tk := range got {
		titles = append(titles, tk.Title)
	}
	if len(titles) != 2 || titles[0] != "lower" || titles[1] != "upper" {
		t.Fatalf("titles = %v", titles)
	}
	if !got[1].DueAt.Equal(base) {
		t.Fatalf("due = %s, want %s", got[1].DueAt, base)
	}

	all, err := s.QueryTasks(ctx, o.ID, model.TaskQuery{})
	if err != nil || len(all) != 5 {
		t.Fatalf("all = %d, %v", len(all), err)
	}
	if all[len(all)-1].Title != "undated" {
		t.Fatalf("undated task should sort last: %v", all[len(all)-1].Title)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	o := mustOwner(t, s, "alice")

	if _, err := s.CreateTask(ctx, model.Task{OwnerID: "ghost", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("task for unknown owner err = %v", err)
	}
	if _, err := s.CreateTask(ctx, model.Task{OwnerID: o.ID, Title: "x", Priority: "urgent"}); err == nil {
		t.Fatalf("bad priority accepted")
	}

	tk, err := s.CreateTask(ctx, model.Task{OwnerID: o.ID, Title: " Pay rent ", Description: "landlord"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if tk.Title != "Pay rent" || tk.Priority != model.PriorityMedium || tk.ID == "" {
		t.Fatalf("created = %+v", tk)
	}

	due := time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local)
	tk.DueAt = &due
	tk.Priority = model.PriorityHigh
	up, err := s.UpdateTask(ctx, tk)
	if err != nil || !up.DueAt.Equal(due) || up.Priority != model.PriorityHigh {
		t.Fatalf("UpdateTask = %+v, %v", up, err)
	}

	if err := s.SetCompleted(ctx, tk.ID, true); err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if !got.Completed {
		t.Fatalf("task not completed")
	}

	if err := s.DeleteTask(ctx, tk.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteTask(ctx, tk.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestSettingsDefaultsAndRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	o := mustOwner(t, s, "alice")

	got, err := s.GetSettings(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !got.TaskDue.Enabled || got.TaskDue.LeadMinutes != 15 || got.DailySummary.Enabled || len(got.Custom) != 0 {
		t.Fatalf("defaults = %+v", got)
	}

	got.DailySummary.Enabled = true
	got.DailySummary.Time = "07:30"
	got.Custom = append(got.Custom, model.CustomNotification{ID: "c1", Title: "Water", Message: "Drink", Time: "12:00"})
	if err := s.PutSettings(ctx, o.ID, got); err != nil {
		t.Fatalf("PutSettings: %v", err)
	}
	again, err := s.GetSettings(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !again.DailySummary.Enabled || again.DailySummary.Time != "07:30" || len(again.Custom) != 1 {
		t.Fatalf("round trip = %+v", again)
	}

	bad := again
	bad.TaskDue.LeadMinutes = 2
	if err := s.PutSettings(ctx, o.ID, bad); !errors.Is(err, model.ErrInvalidSettings) {
		t.Fatalf("invalid settings err = %v", err)
	}
}

func TestSettingsPartialBlobKeepsDefaults(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	o := mustOwner(t, s, "alice")
	if _, err := s.db.Exec("INSERT INTO settings (owner_id, data, updated_at) VALUES (?, ?, 0)",
		o.ID, `{"daily_summary":{"enabled":true,"time":"08:00"}}`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetSettings(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !got.TaskDue.Enabled || got.TaskDue.LeadMinutes != model.DefaultLeadMinutes || got.DailySummary.Time != "08:00" {
		t.Fatalf("merged = %+v", got)
	}

	if _, err := s.db.Exec("UPDATE settings SET data = '{' WHERE owner_id = ?", o.ID); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.GetSettings(ctx, o.ID); !errors.Is(err, ErrCorruptSettings) {
		t.Fatalf("corrupt err = %v", err)
	}
}

func TestSettingsUndecodableSectionIsIsolated(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	o := mustOwner(t, s, "alice")
	blob := `{
		"task_due": {"enabled": true, "lead_minutes": 15},
		"daily_summary": {"enabled": true, "time": 900},
		"weekly_summary": {"enabled": true, "day_of_week": 1, "time": "07:00"},
		"custom_notifications": [{"id": "c1", "title": "Stretch", "time": "10:00"}, {"id": 7}]
	}`
	if _, err := s.db.Exec("INSERT INTO settings (owner_id, data, updated_at) VALUES (?, ?, 0)", o.ID, blob); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetSettings(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if !got.TaskDue.Enabled || got.TaskDue.LeadMinutes != 15 {
		t.Fatalf("task_due = %+v", got.TaskDue)
	}
	if got.DailySummary.Enabled {
		t.Fatalf("undecodable daily summary left enabled: %+v", got.DailySummary)
	}
	if !got.WeeklySummary.Enabled || got.WeeklySummary.Time != "07:00" {
		t.Fatalf("weekly = %+v", got.WeeklySummary)
	}
	if len(got.Custom) != 1 || got.Custom[0].ID != "c1" {
		t.Fatalf("custom = %+v", got.Custom)
	}
	want := []string{model.SectionDaily, model.SectionCustom + "[1]"}
	if len(got.Unreadable) != len(want) || got.Unreadable[0] != want[0] || got.Unreadable[1] != want[1] {
		t.Fatalf("unreadable = %v, want %v", got.Unreadable, want)
	}

	// The task-due check still runs for this owner.
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local) // Saturday
	due := now.Add(10 * time.Minute)
	if _, err := s.CreateTask(ctx, model.Task{OwnerID: o.ID, Title: "Call bank", DueAt: &due}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	ch := &recordingChannel{}
	ev := reminder.NewEvaluator(s, s, []channel.Channel{ch}, nil, nil, reminder.Options{}, logx.Nop())
	rep := ev.Tick(ctx, now)
	if ch.sends != 1 {
		t.Fatalf("sends = %d, want 1 (errors %v)", ch.sends, rep.Errors)
	}
	for _, err := range rep.Errors {
		if errors.Is(err, reminder.ErrSourceUnavailable) {
			t.Fatalf("owner skipped: %v", err)
		}
	}
	var malformed int
	for _, err := range rep.Errors {
		if errors.Is(err, reminder.ErrMalformedSettings) {
			malformed++
		}
	}
	if malformed != 2 {
		t.Fatalf("malformed errors = %d, want 2 (daily, custom): %v", malformed, rep.Errors)
	}
}

type recordingChannel struct{ sends int }

func (c *recordingChannel) Name() string                          { return "desktop" }
func (c *recordingChannel) Available(context.Context, string) bool { return true }
func (c *recordingChannel) Send(context.Context, string, notify.Message) bool {
	c.sends++
	return true
}

func TestLinkCodeConnectAndToggle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := mustOwner(t, s, "alice")
	b := mustOwner(t, s, "bob")
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local)

	code, exp, err := s.IssueLinkCode(ctx, a.ID, now)
	if err != nil || len(code) != 8 || !exp.Equal(now.Add(LinkCodeTTL)) {
		t.Fatalf("IssueLinkCode = %q, %s, %v", code, exp, err)
	}

	link, err := s.ConnectChat(ctx, code, 4242, "alice_tg", now.Add(time.Minute))
	if err != nil || link.OwnerID != a.ID || !link.Enabled {
		t.Fatalf("ConnectChat = %+v, %v", link, err)
	}
	if _, err := s.ConnectChat(ctx, code, 4242, "alice_tg", now.Add(time.Minute)); !errors.Is(err, ErrLinkCodeInvalid) {
		t.Fatalf("reused code err = %v", err)
	}

	got, ok, err := s.ChatLinkForOwner(ctx, a.ID)
	if err != nil || !ok || got.ChatID != 4242 {
		t.Fatalf("ChatLinkForOwner = %+v, %v, %v", got, ok, err)
	}

	off, err := s.SetChatEnabled(ctx, 4242, false)
	if err != nil || off.Enabled {
		t.Fatalf("SetChatEnabled = %+v, %v", off, err)
	}
	if _, err := s.SetChatEnabled(ctx, 1, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown chat err = %v", err)
	}

	// The same chat redeeming bob's code moves over to bob.
	code2, _, _ := s.IssueLinkCode(ctx, b.ID, now)
	if _, err := s.ConnectChat(ctx, lowerCode(code2), 4242, "shared", now.Add(time.Minute)); err != nil {
		t.Fatalf("ConnectChat bob: %v", err)
	}
	if _, ok, _ := s.ChatLinkForOwner(ctx, a.ID); ok {
		t.Fatalf("alice still linked to moved chat")
	}
	moved, ok, _ := s.ChatLinkForChat(ctx, 4242)
	if !ok || moved.OwnerID != b.ID || !moved.Enabled {
		t.Fatalf("moved link = %+v", moved)
	}
}

// lowerCode checks redemption is case-insensitive.
func lowerCode(code string) string {
	b := []byte(code)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestLinkCodeExpires(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	a := mustOwner(t, s, "alice")
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local)

	code, _, err := s.IssueLinkCode(ctx, a.ID, now)
	if err != nil {
		t.Fatalf("IssueLinkCode: %v", err)
	}
	if _, err := s.ConnectChat(ctx, code, 1, "", now.Add(LinkCodeTTL)); !errors.Is(err, ErrLinkCodeInvalid) {
		t.Fatalf("expired code err = %v", err)
	}
}

func TestLedgerStore(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.Local)

	var _ reminder.LedgerStore = s
	if err := s.PutFire(ctx, reminder.Fire{Key: "daily:o:2024-06-01", FiredAt: now, Until: now.Add(time.Hour)}); err != nil {
		t.Fatalf("PutFire: %v", err)
	}
	if err := s.PutFire(ctx, reminder.Fire{Key: "old", FiredAt: now, Until: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("PutFire: %v", err)
	}

	fires, err := s.LoadFires(ctx, now)
	if err != nil || len(fires) != 1 || fires[0].Key != "daily:o:2024-06-01" {
		t.Fatalf("LoadFires = %+v, %v", fires, err)
	}
	n, err := s.PruneFires(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("PruneFires = %d, %v", n, err)
	}
}
