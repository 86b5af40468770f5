package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"taskpilot/internal/model"
	"taskpilot/internal/notify"
	"taskpilot/internal/notify/channel"
)

type fakeTasks struct {
	mu    sync.Mutex
	tasks []model.Task
	err   error
	calls int
}

func (f *fakeTasks) set(tasks ...model.Task) {
	f.mu.Lock()
	f.tasks = tasks
	f.mu.Unlock()
}

func (f *fakeTasks) QueryTasks(_ context.Context, owner string, q model.TaskQuery) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Task
	for _, t := range f.tasks {
		if t.OwnerID != owner {
			continue
		}
		if q.Completed != nil && t.Completed != *q.Completed {
			continue
		}
		if !q.DueAfter.IsZero() || !q.DueBefore.IsZero() {
			if !t.HasDue() {
				continue
			}
			if !q.DueAfter.IsZero() && t.DueAt.Before(q.DueAfter) {
				continue
			}
			if !q.DueBefore.IsZero() && t.DueAt.After(q.DueBefore) {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

type fakeSettings struct {
	mu       sync.Mutex
	settings map[string]model.NotificationSettings
	err      error
	lists    int
}

func newFakeSettings(owner string, s model.NotificationSettings) *fakeSettings {
	return &fakeSettings{settings: map[string]model.NotificationSettings{owner: s}}
}

func (f *fakeSettings) put(owner string, s model.NotificationSettings) {
	f.mu.Lock()
	f.settings[owner] = s
	f.mu.Unlock()
}

func (f *fakeSettings) ListOwners(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, 0, len(f.settings))
	for k := range f.settings {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeSettings) GetSettings(_ context.Context, owner string) (model.NotificationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[owner]
	if !ok {
		return model.DefaultSettings(), nil
	}
	return s, nil
}

// sendLog records sends across channels in order.
type sendLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *sendLog) add(s string) {
	l.mu.Lock()
	l.entries = append(l.entries, s)
	l.mu.Unlock()
}

func (l *sendLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type fakeChannel struct {
	name      string
	available bool
	fail      bool
	panics    bool
	log       *sendLog

	mu    sync.Mutex
	sends []notify.Message
	tries int
}

var _ channel.Channel = (*fakeChannel)(nil)

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Available(context.Context, string) bool { return c.available }

func (c *fakeChannel) Send(_ context.Context, _ string, msg notify.Message) bool {
	c.mu.Lock()
	c.tries++
	c.mu.Unlock()
	if c.panics {
		panic(errors.New("network exploded"))
	}
	if c.fail {
		return false
	}
	c.mu.Lock()
	c.sends = append(c.sends, msg)
	c.mu.Unlock()
	if c.log != nil {
		c.log.add(c.name + ":" + msg.Title)
	}
	return true
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

func (c *fakeChannel) attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tries
}

type fakeStore struct {
	mu    sync.Mutex
	fires map[string]Fire
}

func newFakeStore() *fakeStore { return &fakeStore{fires: map[string]Fire{}} }

func (s *fakeStore) PutFire(_ context.Context, f Fire) error {
	s.mu.Lock()
	s.fires[f.Key] = f
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) LoadFires(_ context.Context, now time.Time) ([]Fire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Fire
	for _, f := range s.fires {
		if f.Until.After(now) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) PruneFires(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, f := range s.fires {
		if !f.Until.After(now) {
			delete(s.fires, k)
			n++
		}
	}
	return n, nil
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func ptr[T any](v T) *T { return &v }

// quiet returns settings with every category disabled.
func quiet() model.NotificationSettings {
	s := model.DefaultSettings()
	s.TaskDue.Enabled = false
	return s
}
