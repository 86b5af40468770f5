package router

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskpilot/internal/eventbus"
	"taskpilot/internal/model"
	"taskpilot/internal/storage"
	kit "taskpilot/internal/transport"
	logx "taskpilot/pkg/logx"
)

type fakeStore struct {
	codes   map[string]string // code -> owner
	links   map[int64]model.ChatLink
	owners  map[string]string
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		codes:  map[string]string{"ABCD1234": "o1"},
		links:  map[int64]model.ChatLink{},
		owners: map[string]string{"o1": "Alice"},
	}
}

func (f *fakeStore) ConnectChat(_ context.Context, code string, chatID int64, username string, now time.Time) (model.ChatLink, error) {
	owner, ok := f.codes[strings.ToUpper(code)]
	if !ok {
		return model.ChatLink{}, storage.ErrLinkCodeInvalid
	}
	delete(f.codes, strings.ToUpper(code))
	l := model.ChatLink{OwnerID: owner, ChatID: chatID, Username: username, Enabled: true, LinkedAt: now}
	f.links[chatID] = l
	return l, nil
}

func (f *fakeStore) SetChatEnabled(_ context.Context, chatID int64, enabled bool) (model.ChatLink, error) {
	l, ok := f.links[chatID]
	if !ok {
		return model.ChatLink{}, storage.ErrNotFound
	}
	l.Enabled = enabled
	f.links[chatID] = l
	return l, nil
}

func (f *fakeStore) ChatLinkForChat(_ context.Context, chatID int64) (model.ChatLink, bool, error) {
	if f.failGet {
		return model.ChatLink{}, false, errors.New("db down")
	}
	l, ok := f.links[chatID]
	return l, ok, nil
}

func (f *fakeStore) GetOwner(_ context.Context, id string) (model.Owner, error) {
	name, ok := f.owners[id]
	if !ok {
		return model.Owner{}, storage.ErrNotFound
	}
	return model.Owner{ID: id, Name: name}, nil
}

type fakeReplier struct {
	sent []string
	opts []*kit.SendOptions
}

func (f *fakeReplier) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, text)
	f.opts = append(f.opts, opt)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeReplier) last() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func msg(chatID int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: chatID, FromID: 7, FromUsername: "alice", Text: text}}
}

func setup() (*Router, *fakeStore, *fakeReplier, <-chan eventbus.Event) {
	st := newFakeStore()
	rp := &fakeReplier{}
	bus := eventbus.New()
	events, _ := bus.Subscribe(16)
	r := New(st, rp, bus, logx.Nop())
	r.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local) }
	return r, st, rp, events
}

func TestConnectLinksChat(t *testing.T) {
	r, st, rp, events := setup()
	ctx := context.Background()

	if err := r.Handle(ctx, msg(42, "/connect abcd1234")); err != nil {
		t.Fatal(err)
	}
	l, ok := st.links[42]
	if !ok || l.OwnerID != "o1" || !l.Enabled || l.Username != "alice" {
		t.Fatalf("link = %+v ok=%v", l, ok)
	}
	if !strings.Contains(rp.last(), "<b>Alice</b>") {
		t.Fatalf("reply = %q", rp.last())
	}
	if rp.opts[0].ParseMode != "HTML" {
		t.Fatalf("parse mode = %q", rp.opts[0].ParseMode)
	}
	e := <-events
	if e.Type != eventbus.TypeChatLinked || e.Data.(eventbus.LinkData).ChatID != 42 {
		t.Fatalf("event = %+v", e)
	}

	// Codes are single use.
	_ = r.Handle(ctx, msg(43, "/connect ABCD1234"))
	if !strings.Contains(rp.last(), "invalid or expired") {
		t.Fatalf("reply = %q", rp.last())
	}
}

func TestConnectWithoutCode(t *testing.T) {
	r, st, rp, _ := setup()
	ctx := context.Background()

	_ = r.Handle(ctx, msg(42, "/connect"))
	if !strings.Contains(rp.last(), "Usage") {
		t.Fatalf("reply = %q", rp.last())
	}

	st.links[42] = model.ChatLink{OwnerID: "o1", ChatID: 42, Enabled: false}
	_ = r.Handle(ctx, msg(42, "/connect@taskpilot_bot"))
	if !st.links[42].Enabled {
		t.Fatal("link should be re-enabled")
	}
}

func TestDisconnectAndStatus(t *testing.T) {
	r, st, rp, events := setup()
	ctx := context.Background()

	_ = r.Handle(ctx, msg(42, "/disconnect"))
	if !strings.Contains(rp.last(), "not linked") {
		t.Fatalf("reply = %q", rp.last())
	}

	st.links[42] = model.ChatLink{OwnerID: "o1", ChatID: 42, Enabled: true, LinkedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)}
	_ = r.Handle(ctx, msg(42, "/disconnect"))
	if st.links[42].Enabled {
		t.Fatal("link should be disabled")
	}
	if e := <-events; e.Type != eventbus.TypeChatUnlinked {
		t.Fatalf("event = %s", e.Type)
	}

	_ = r.Handle(ctx, msg(42, "/status"))
	got := rp.last()
	for _, want := range []string{"<b>Alice</b>", "<b>off</b>", "2026-03-01 09:30"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status %q missing %q", got, want)
		}
	}
}

func TestIgnoresNonCommands(t *testing.T) {
	r, _, rp, _ := setup()
	ctx := context.Background()
	for _, text := range []string{"hello", "", "/unknown", "/"} {
		if err := r.Handle(ctx, msg(1, text)); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
	}
	if err := r.Handle(ctx, kit.Update{}); err != nil {
		t.Fatal(err)
	}
	if len(rp.sent) != 0 {
		t.Fatalf("unexpected replies: %q", rp.sent)
	}
}

func TestStoreErrorRepliesGenerically(t *testing.T) {
	r, st, rp, _ := setup()
	st.failGet = true
	err := r.Handle(context.Background(), msg(1, "/status"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(rp.last(), "went wrong") {
		t.Fatalf("reply = %q", rp.last())
	}
}

func TestStartListsCommands(t *testing.T) {
	r, _, rp, _ := setup()
	_ = r.Handle(context.Background(), msg(1, "/start"))
	for _, want := range []string{"/connect CODE", "/disconnect", "/status"} {
		if !strings.Contains(rp.last(), want) {
			t.Fatalf("start text missing %q: %q", want, rp.last())
		}
	}
	if got := len(r.Menu()); got != 4 {
		t.Fatalf("menu = %d entries", got)
	}
}

func TestRunStopsOnClose(t *testing.T) {
	r, st, _, _ := setup()
	ch := make(chan kit.Update, 1)
	ch <- msg(5, "/connect ABCD1234")
	close(ch)
	if err := r.Run(context.Background(), ch); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.links[5]; !ok {
		t.Fatal("update not handled")
	}
}
