package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"taskpilot/internal/eventbus"
	"taskpilot/internal/model"
	"taskpilot/internal/notify"
	"taskpilot/internal/notify/channel"
	logx "taskpilot/pkg/logx"
)

// TaskSource is the read-only task query surface.
type TaskSource interface {
	QueryTasks(ctx context.Context, owner string, q model.TaskQuery) ([]model.Task, error)
}

// SettingsSource lists owners and returns their settings, defaults included.
type SettingsSource interface {
	ListOwners(ctx context.Context) ([]string, error)
	GetSettings(ctx context.Context, owner string) (model.NotificationSettings, error)
}

// Options tune the Evaluator. Zero values mean defaults.
type Options struct {
	Policy    Policy
	Retention time.Duration
	CatchUp   bool
}

func (o Options) normalized() Options {
	if o.Policy == "" {
		o.Policy = PolicyAttempted
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	return o
}

// Occurrence kinds, also used as the "kind" field in logs and events.
const (
	KindTaskDue = "task_due"
	KindDaily   = "daily"
	KindWeekly  = "weekly"
	KindMonthly = "monthly"
	KindCustom  = "custom"
)

const (
	dailySpan   = 24 * time.Hour
	weeklySpan  = 7 * 24 * time.Hour
	monthlySpan = 30 * 24 * time.Hour
	pruneEvery  = time.Hour
)

// Report summarizes one tick.
type Report struct {
	Owners    int
	Delivered int // channel sends that succeeded
	Failed    int // channel sends that failed
	Errors    []error
}

// Evaluator runs the checks for every owner on each tick.
type Evaluator struct {
	tasks    TaskSource
	settings SettingsSource
	channels []channel.Channel
	ledger   *Ledger
	bus      eventbus.Bus
	log      logx.Logger

	mu        sync.Mutex
	opts      Options
	lastPrune time.Time
}

// NewEvaluator wires an Evaluator. ledger and bus may be nil.
func NewEvaluator(tasks TaskSource, settings SettingsSource, channels []channel.Channel, ledger *Ledger, bus eventbus.Bus, opts Options, log logx.Logger) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if ledger == nil {
		ledger = NewLedger(nil, log)
	}
	return &Evaluator{
		tasks:    tasks,
		settings: settings,
		channels: channels,
		ledger:   ledger,
		bus:      bus,
		log:      log,
		opts:     opts.normalized(),
	}
}

// Apply swaps options at runtime. Safe while ticks run.
func (e *Evaluator) Apply(opts Options) {
	e.mu.Lock()
	e.opts = opts.normalized()
	e.mu.Unlock()
}

func (e *Evaluator) options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Ledger exposes the dedup ledger.
func (e *Evaluator) Ledger() *Ledger { return e.ledger }

// Tick evaluates every owner at now. It never panics and never returns an
// error; failures are logged and collected in the Report.
func (e *Evaluator) Tick(ctx context.Context, now time.Time) Report {
	now = now.Truncate(time.Second)
	opts := e.options()
	rep := &Report{}

	e.maybePrune(ctx, now)

	owners, err := e.settings.ListOwners(ctx)
	if err != nil {
		err = fmt.Errorf("%w: list owners: %w", ErrSourceUnavailable, err)
		e.log.Warn("tick skipped", logx.Err(err))
		rep.Errors = append(rep.Errors, err)
		e.publishTick(rep)
		return *rep
	}
	rep.Owners = len(owners)

	for _, owner := range owners {
		s, err := e.settings.GetSettings(ctx, owner)
		if err != nil {
			err = fmt.Errorf("%w: settings for %s: %w", ErrSourceUnavailable, owner, err)
			e.log.Warn("owner skipped", logx.String("owner", owner), logx.Err(err))
			rep.Errors = append(rep.Errors, err)
			continue
		}

		e.run(rep, owner, KindTaskDue, func() error {
			if err := unreadable(s, model.SectionTaskDue); err != nil {
				return err
			}
			return e.checkTaskDue(ctx, rep, now, owner, s.TaskDue, opts)
		})
		e.run(rep, owner, KindDaily, func() error {
			if err := unreadable(s, model.SectionDaily); err != nil {
				return err
			}
			return e.checkDaily(ctx, rep, now, owner, s.DailySummary, opts)
		})
		e.run(rep, owner, KindWeekly, func() error {
			if err := unreadable(s, model.SectionWeekly); err != nil {
				return err
			}
			return e.checkWeekly(ctx, rep, now, owner, s.WeeklySummary, opts)
		})
		e.run(rep, owner, KindMonthly, func() error {
			if err := unreadable(s, model.SectionMonthly); err != nil {
				return err
			}
			return e.checkMonthly(ctx, rep, now, owner, s.MonthlySummary, opts)
		})
		// Readable custom entries still fire next to unreadable ones.
		e.run(rep, owner, KindCustom, func() error {
			return errors.Join(e.checkCustom(ctx, rep, now, owner, s.Custom, opts), unreadable(s, model.SectionCustom))
		})
	}

	e.publishTick(rep)
	if rep.Delivered > 0 || rep.Failed > 0 || len(rep.Errors) > 0 {
		e.log.Info("tick done",
			logx.Int("owners", rep.Owners),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
			logx.Int("errors", len(rep.Errors)),
		)
	}
	return *rep
}

// unreadable reports the parts of section the store could not decode.
func unreadable(s model.NotificationSettings, section string) error {
	parts := s.UnreadableIn(section)
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("%w: unreadable %v", ErrMalformedSettings, parts)
}

// run isolates one check: an error or panic is logged and recorded, and the
// next check still runs.
func (e *Evaluator) run(rep *Report, owner, kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s check panicked: %v", kind, r)
			e.log.Error("check panicked", logx.String("owner", owner), logx.String("kind", kind),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			rep.Errors = append(rep.Errors, err)
		}
	}()
	if err := fn(); err != nil {
		lvl := e.log.Warn
		if errors.Is(err, ErrMalformedSettings) {
			lvl = e.log.Debug
		}
		lvl("check skipped", logx.String("owner", owner), logx.String("kind", kind), logx.Err(err))
		rep.Errors = append(rep.Errors, err)
	}
}

func (e *Evaluator) checkTaskDue(ctx context.Context, rep *Report, now time.Time, owner string, s model.TaskDueSettings, opts Options) error {
	if !s.Enabled {
		return nil
	}
	if s.LeadMinutes < model.MinLeadMinutes || s.LeadMinutes > model.MaxLeadMinutes {
		return fmt.Errorf("%w: lead_minutes %d", ErrMalformedSettings, s.LeadMinutes)
	}
	until := now.Add(time.Duration(s.LeadMinutes) * time.Minute)

	open := false
	tasks, err := e.tasks.QueryTasks(ctx, owner, model.TaskQuery{Completed: &open, DueAfter: now, DueBefore: until})
	if err != nil {
		return fmt.Errorf("%w: due tasks: %w", ErrSourceUnavailable, err)
	}
	for _, t := range tasks {
		if t.Completed || !t.HasDue() {
			continue
		}
		due := *t.DueAt
		if due.Before(now) || due.After(until) {
			continue
		}
		key := dueKey(owner, t.ID, due)
		if !e.ledger.Reserve(key) {
			continue
		}
		sent := e.deliver(ctx, rep, owner, KindTaskDue, key, notify.FormatTask(t))
		e.settle(ctx, key, now, due.Add(opts.Retention), opts.Policy, sent)
	}
	return nil
}

func (e *Evaluator) checkDaily(ctx context.Context, rep *Report, now time.Time, owner string, s model.DailySummarySettings, opts Options) error {
	if !s.Enabled {
		return nil
	}
	return e.digest(ctx, rep, now, owner, KindDaily, s.Time, true, dailyKey(owner, now), dailySpan, opts)
}

func (e *Evaluator) checkWeekly(ctx context.Context, rep *Report, now time.Time, owner string, s model.WeeklySummarySettings, opts Options) error {
	if !s.Enabled {
		return nil
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week %d", ErrMalformedSettings, s.DayOfWeek)
	}
	return e.digest(ctx, rep, now, owner, KindWeekly, s.Time, int(now.Weekday()) == s.DayOfWeek, weeklyKey(owner, now), weeklySpan, opts)
}

func (e *Evaluator) checkMonthly(ctx context.Context, rep *Report, now time.Time, owner string, s model.MonthlySummarySettings, opts Options) error {
	if !s.Enabled {
		return nil
	}
	if s.DayOfMonth < 1 || s.DayOfMonth > 28 {
		return fmt.Errorf("%w: day_of_month %d", ErrMalformedSettings, s.DayOfMonth)
	}
	return e.digest(ctx, rep, now, owner, KindMonthly, s.Time, now.Day() == s.DayOfMonth, monthlyKey(owner, now), monthlySpan, opts)
}

// digest is the shared body of the three summary checks. dayOK carries the
// weekday / day-of-month gate.
func (e *Evaluator) digest(ctx context.Context, rep *Report, now time.Time, owner, kind, at string, dayOK bool, key string, span time.Duration, opts Options) error {
	c, err := model.ParseClock(at)
	if err != nil {
		return fmt.Errorf("%w: %s time: %w", ErrMalformedSettings, kind, err)
	}
	if !dayOK || !minuteMatch(now, c, opts.CatchUp) {
		return nil
	}
	if !e.ledger.Reserve(key) {
		return nil
	}

	open := false
	tasks, err := e.tasks.QueryTasks(ctx, owner, model.TaskQuery{Completed: &open, DueAfter: now, DueBefore: now.Add(span)})
	if err != nil {
		e.ledger.Release(key)
		return fmt.Errorf("%w: %s digest: %w", ErrSourceUnavailable, kind, err)
	}
	sent := e.deliver(ctx, rep, owner, kind, key, notify.FormatDigest(notify.DigestTitle(kind, now), tasks))
	e.settle(ctx, key, now, now.Add(opts.Retention), opts.Policy, sent)
	return nil
}

func (e *Evaluator) checkCustom(ctx context.Context, rep *Report, now time.Time, owner string, list []model.CustomNotification, opts Options) error {
	var errs []error
	for i, c := range list {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("%w: custom[%d] has no id", ErrMalformedSettings, i))
			continue
		}
		clk, err := model.ParseClock(c.Time)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: custom %s time: %w", ErrMalformedSettings, c.ID, err))
			continue
		}
		if !minuteMatch(now, clk, opts.CatchUp) {
			continue
		}
		key := customKey(owner, c.ID, now)
		if !e.ledger.Reserve(key) {
			continue
		}
		sent := e.deliver(ctx, rep, owner, KindCustom, key, notify.FormatCustom(c))
		e.settle(ctx, key, now, now.Add(opts.Retention), opts.Policy, sent)
	}
	return errors.Join(errs...)
}

// deliver attempts every available channel independently and returns how
// many sends succeeded.
func (e *Evaluator) deliver(ctx context.Context, rep *Report, owner, kind, key string, msg notify.Message) int {
	sent := 0
	for _, ch := range e.channels {
		name := ch.Name()
		if !e.available(ctx, ch, owner) {
			continue
		}
		if e.send(ctx, ch, owner, msg) {
			sent++
			rep.Delivered++
			e.publish(eventbus.TypeNotifySent, owner, kind, key, name)
			e.log.Debug("delivered", logx.String("owner", owner), logx.String("kind", kind), logx.String("channel", name))
			continue
		}
		rep.Failed++
		e.publish(eventbus.TypeNotifyFailed, owner, kind, key, name)
		e.log.Warn("delivery failed", logx.String("owner", owner), logx.String("kind", kind),
			logx.String("channel", name), logx.Err(ErrDeliveryFailed))
	}
	return sent
}

// settle commits or releases a reserved key according to policy.
func (e *Evaluator) settle(ctx context.Context, key string, now, until time.Time, policy Policy, sent int) {
	if policy == PolicyDelivered && sent == 0 {
		e.ledger.Release(key)
		return
	}
	e.ledger.Commit(ctx, key, now, until)
}

func (e *Evaluator) available(ctx context.Context, ch channel.Channel, owner string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("channel availability panicked", logx.String("channel", ch.Name()), logx.Any("panic", r))
			ok = false
		}
	}()
	return ch.Available(ctx, owner)
}

func (e *Evaluator) send(ctx context.Context, ch channel.Channel, owner string, msg notify.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("channel send panicked", logx.String("channel", ch.Name()), logx.Any("panic", r))
			ok = false
		}
	}()
	return ch.Send(ctx, owner, msg)
}

func (e *Evaluator) maybePrune(ctx context.Context, now time.Time) {
	e.mu.Lock()
	due := now.Sub(e.lastPrune) >= pruneEvery
	if due {
		e.lastPrune = now
	}
	e.mu.Unlock()
	if !due {
		return
	}
	if n := e.ledger.Prune(ctx, now); n > 0 {
		e.log.Debug("ledger pruned", logx.Int("removed", n), logx.Int("kept", e.ledger.Len()))
	}
}

func (e *Evaluator) publish(typ, owner, kind, key, ch string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: eventbus.DeliveryData{Owner: owner, Kind: kind, Key: key, Channel: ch}})
}

func (e *Evaluator) publishTick(rep *Report) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderTick, Data: eventbus.TickData{
		Owners:    rep.Owners,
		Delivered: rep.Delivered,
		Failed:    rep.Failed,
		Errors:    len(rep.Errors),
	}})
}
