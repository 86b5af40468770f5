package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "taskpilot/pkg/logx"
)

func TestLedgerReserveCommitRelease(t *testing.T) {
	l := NewLedger(nil, logx.Nop())
	now := at(2024, 6, 3, 9, 0)

	if !l.Reserve("k") {
		t.Fatalf("first Reserve should succeed")
	}
	if l.Reserve("k") {
		t.Fatalf("Reserve on in-flight key should fail")
	}
	l.Release("k")
	if !l.Reserve("k") {
		t.Fatalf("Reserve after Release should succeed")
	}
	l.Commit(context.Background(), "k", now, now.Add(time.Hour))
	if !l.Has("k") || l.Reserve("k") {
		t.Fatalf("committed key must block Reserve")
	}
}

func TestLedgerConcurrentReserveSingleWinner(t *testing.T) {
	l := NewLedger(nil, logx.Nop())
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve("daily:o:2024-06-03") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestLedgerPrunePersists(t *testing.T) {
	store := newFakeStore()
	l := NewLedger(store, logx.Nop())
	now := at(2024, 6, 3, 9, 0)

	l.Reserve("old")
	l.Commit(context.Background(), "old", now, now.Add(time.Hour))
	l.Reserve("new")
	l.Commit(context.Background(), "new", now, now.Add(48*time.Hour))

	if n := l.Prune(context.Background(), now.Add(2*time.Hour)); n != 1 {
		t.Fatalf("pruned = %d, want 1", n)
	}
	if l.Has("old") || !l.Has("new") {
		t.Fatalf("wrong key pruned")
	}
	if _, ok := store.fires["old"]; ok {
		t.Fatalf("store kept pruned key")
	}

	fresh := NewLedger(store, logx.Nop())
	n, err := fresh.Load(context.Background(), now.Add(2*time.Hour))
	if err != nil || n != 1 || !fresh.Has("new") {
		t.Fatalf("Load = %d, %v; has new = %v", n, err, fresh.Has("new"))
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyAttempted, "attempted": PolicyAttempted, " Delivered ": PolicyDelivered}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("confirmed"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestEvaluatorPrunesHourly(t *testing.T) {
	ev := newEval(&fakeTasks{}, newFakeSettings(owner, quiet()), Options{})
	now := at(2024, 6, 3, 9, 0)
	ev.Ledger().Reserve("stale")
	ev.Ledger().Commit(context.Background(), "stale", now.Add(-48*time.Hour), now.Add(-time.Minute))

	ev.Tick(context.Background(), now)
	if ev.Ledger().Has("stale") {
		t.Fatalf("expired key survived the tick")
	}
}
