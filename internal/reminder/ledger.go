package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	logx "taskpilot/pkg/logx"
)

// Policy decides when an occurrence is recorded.
type Policy string

const (
	// PolicyAttempted records an occurrence once delivery was attempted,
	// whatever the outcome. A transient failure is never retried.
	PolicyAttempted Policy = "attempted"
	// PolicyDelivered records only after at least one channel succeeded, so a
	// failed occurrence is retried on the next tick that still matches it.
	PolicyDelivered Policy = "delivered"
)

// ParsePolicy maps a config string to a Policy. Empty means attempted.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAttempted, nil
	case PolicyAttempted, PolicyDelivered:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ledger policy %q (use attempted or delivered)", s)
	}
}

// DefaultRetention outlives the longest period (monthly) with margin.
const DefaultRetention = 35 * 24 * time.Hour

// Fire is one recorded occurrence.
type Fire struct {
	Key     string
	FiredAt time.Time
	Until   time.Time
}

// LedgerStore persists fires across restarts. Implemented by storage.
type LedgerStore interface {
	PutFire(ctx context.Context, f Fire) error
	LoadFires(ctx context.Context, now time.Time) ([]Fire, error)
	PruneFires(ctx context.Context, now time.Time) (int64, error)
}

// Ledger is the dedup set of fired occurrence keys.
type Ledger struct {
	mu       sync.Mutex
	fires    map[string]time.Time // key -> until
	inflight map[string]struct{}

	store LedgerStore
	log   logx.Logger
}

// NewLedger returns an empty ledger. store may be nil.
func NewLedger(store LedgerStore, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{
		fires:    map[string]time.Time{},
		inflight: map[string]struct{}{},
		store:    store,
		log:      log,
	}
}

// Load merges unexpired fires from the store.
func (l *Ledger) Load(ctx context.Context, now time.Time) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	fs, err := l.store.LoadFires(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load ledger: %w", err)
	}
	l.mu.Lock()
	for _, f := range fs {
		if f.Until.After(now) {
			l.fires[f.Key] = f.Until
		}
	}
	l.mu.Unlock()
	return len(fs), nil
}

// Has reports whether key is recorded.
func (l *Ledger) Has(key string) bool {
	l.mu.Lock()
	_, ok := l.fires[key]
	l.mu.Unlock()
	return ok
}

// Reserve claims key for an in-flight delivery. It returns false when the key
// is already recorded or another tick holds it. Every successful Reserve must
// be followed by Commit or Release.
func (l *Ledger) Reserve(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fires[key]; ok {
		return false
	}
	if _, ok := l.inflight[key]; ok {
		return false
	}
	l.inflight[key] = struct{}{}
	return true
}

// Commit records a reserved key. A persistence failure is logged; the
// in-memory record stands.
func (l *Ledger) Commit(ctx context.Context, key string, firedAt, until time.Time) {
	l.mu.Lock()
	delete(l.inflight, key)
	l.fires[key] = until
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.PutFire(ctx, Fire{Key: key, FiredAt: firedAt, Until: until}); err != nil {
		l.log.Warn("persist fire failed", logx.String("key", key), logx.Err(err))
	}
}

// Release drops a reservation without recording it.
func (l *Ledger) Release(key string) {
	l.mu.Lock()
	delete(l.inflight, key)
	l.mu.Unlock()
}

// Prune drops records whose expiry is at or before now.
func (l *Ledger) Prune(ctx context.Context, now time.Time) int {
	n := 0
	l.mu.Lock()
	for k, until := range l.fires {
		if !until.After(now) {
			delete(l.fires, k)
			n++
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		if _, err := l.store.PruneFires(ctx, now); err != nil {
			l.log.Warn("prune persisted fires failed", logx.Err(err))
		}
	}
	return n
}

// Len is the number of recorded keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fires)
}
