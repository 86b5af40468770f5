package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	logx "taskpilot/pkg/logx"
)

const (
	DefaultStoragePath     = "./taskpilot.db"
	DefaultPollTimeout     = 10 * time.Second
	DefaultTickInterval    = time.Minute
	DefaultLedgerRetention = 35 * 24 * time.Hour
	DefaultDesktopExpire   = 10 * time.Second
)

// Resolved holds parsed durations and defaults derived from a Config.
type Resolved struct {
	PollTimeout     time.Duration
	GroupLogChatID  int64
	StoragePath     string
	BusyTimeout     time.Duration
	TickInterval    time.Duration
	LedgerPolicy    string
	LedgerRetention time.Duration
	DesktopExpire   time.Duration
	TelegramRate    int
}

// Resolve validates c and fills in defaults. Every problem is reported, not
// just the first.
func (c *Config) Resolve() (Resolved, error) {
	var (
		r    Resolved
		errs []error
		err  error
	)
	if c == nil {
		return r, errors.New("config is nil")
	}

	if r.PollTimeout, err = durationField("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout); err != nil {
		errs = append(errs, err)
	}
	if g := strings.TrimSpace(c.Telegram.GroupLog); g != "" {
		if r.GroupLogChatID, err = strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", g))
		}
	}
	if c.Logging.Telegram.Enabled && r.GroupLogChatID == 0 {
		errs = append(errs, errors.New("logging.telegram.enabled requires telegram.group_log"))
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if logx.ParseLevel(lvl, zerolog.NoLevel) == zerolog.NoLevel {
			errs = append(errs, fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}

	r.StoragePath = strings.TrimSpace(c.Storage.Path)
	if r.StoragePath == "" {
		r.StoragePath = DefaultStoragePath
	}
	if r.BusyTimeout, err = durationField("storage.busy_timeout", c.Storage.BusyTimeout, 0); err != nil {
		errs = append(errs, err)
	}

	if r.TickInterval, err = durationField("scheduler.tick_interval", c.Scheduler.TickInterval, DefaultTickInterval); err != nil {
		errs = append(errs, err)
	} else if r.TickInterval < time.Second {
		errs = append(errs, fmt.Errorf("scheduler.tick_interval must be >= 1s, got %s", r.TickInterval))
	}
	switch p := strings.ToLower(strings.TrimSpace(c.Scheduler.LedgerPolicy)); p {
	case "", "attempted":
		r.LedgerPolicy = "attempted"
	case "delivered":
		r.LedgerPolicy = p
	default:
		errs = append(errs, fmt.Errorf("scheduler.ledger_policy: unknown policy %q (use attempted or delivered)", c.Scheduler.LedgerPolicy))
	}
	if r.LedgerRetention, err = durationField("scheduler.ledger_retention", c.Scheduler.LedgerRetention, DefaultLedgerRetention); err != nil {
		errs = append(errs, err)
	}

	if r.DesktopExpire, err = durationField("channels.desktop.expire_timeout", c.Channels.Desktop.ExpireTimeout, DefaultDesktopExpire); err != nil {
		errs = append(errs, err)
	}
	r.TelegramRate = c.Channels.Telegram.RatePerSec
	if r.TelegramRate < 0 {
		errs = append(errs, errors.New("channels.telegram.rate_per_sec must be >= 0"))
	}
	if r.TelegramRate == 0 {
		r.TelegramRate = 20
	}

	return r, errors.Join(errs...)
}

// durationField parses a Go duration string at path. Empty or zero values
// yield def; negative values are rejected.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	case d == 0:
		return def, nil
	}
	return d, nil
}
