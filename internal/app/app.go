package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskpilot/internal/config"
	"taskpilot/internal/eventbus"
	"taskpilot/internal/notify/channel"
	"taskpilot/internal/reminder"
	"taskpilot/internal/runtime/supervisor"
	"taskpilot/internal/storage"
	kit "taskpilot/internal/transport"
	telegram "taskpilot/internal/transport/telegram/adapter"
	"taskpilot/internal/transport/telegram/router"
	logx "taskpilot/pkg/logx"
)

// App is the daemon: config, logging, storage, the reminder scheduler and
// the Telegram bot wired together.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store *storage.Store

	adapter bot // nil without a bot token
	router  *router.Router
	updates chan kit.Update

	desktop *channel.Desktop
	tgChan  *channel.Telegram
	sched   *reminder.Service

	schedMu sync.Mutex
	handle  *reminder.Handle
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	st, err := mapConfig(cfg)
	if err != nil {
		return nil, err
	}

	var ad *telegram.Adapter
	var sink logx.Sink
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		ad, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: st.resolved.PollTimeout}, bootLog)
		if err != nil {
			return nil, err
		}
		sink = ad
	}

	// Bootstrap with the chat sink off, set the target, then apply the real
	// config so Apply does not warn about a missing target.
	bootCfg := st.logging
	bootCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootCfg, sink)
	if st.resolved.GroupLogChatID != 0 {
		logSvc.SetChatTarget(st.resolved.GroupLogChatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(st.logging)
	log := root.With(logx.String("comp", "app"))

	store, err := storage.Open(st.storage, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	desktop := channel.NewDesktop(st.desktop, root.With(logx.String("comp", "channel.desktop")))
	var sender channel.TextSender
	if ad != nil {
		sender = ad
	}
	tgChan := channel.NewTelegram(st.telegram, store, sender, root.With(logx.String("comp", "channel.telegram")))

	var ledgerStore reminder.LedgerStore
	if cfg.Scheduler.PersistLedger {
		ledgerStore = store
	}
	remLog := root.With(logx.String("comp", "reminder"))
	ev := reminder.NewEvaluator(store, store, []channel.Channel{desktop, tgChan},
		reminder.NewLedger(ledgerStore, remLog), bus, st.reminder, remLog)
	sched := reminder.NewService(ev, st.resolved.TickInterval, remLog)

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		updates: make(chan kit.Update, 256),
		desktop: desktop,
		tgChan:  tgChan,
		sched:   sched,
	}
	if ad != nil {
		a.adapter = ad
		a.router = router.New(store, ad, bus, root.With(logx.String("comp", "router")))
	}
	return a, nil
}

// bot is the part of the Telegram adapter the app drives.
type bot interface {
	Start(ctx context.Context, out chan<- kit.Update) error
	Stop(ctx context.Context) error
	SetCommands(cmds []kit.BotCommand) error
}

// Store exposes the database for in-process callers.
func (a *App) Store() *storage.Store { return a.store }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			err = fmt.Errorf("starting telegram adapter: %w", err)
			// The caller never reaches Stop, so release everything here.
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return errors.Join(err, a.Stop(stopCtx, StopFatalError))
		}
		if err := a.adapter.SetCommands(a.router.Menu()); err != nil {
			a.log.Warn("bot command menu not updated", logx.Err(err))
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.Run(c, a.updates)
		})
	} else {
		a.log.Warn("telegram token not set; bot and telegram channel disabled")
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.logEvent(e)
			}
		}
	})

	if a.cfgm.Get().Scheduler.Enabled {
		a.startScheduler(a.sup.Context())
	} else {
		a.log.Info("scheduler disabled by config")
	}

	a.sup.Go("config.reload", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case ch := <-a.cfgm.Changes():
				sdNotify(a.log, daemon.SdNotifyReloading)
				a.reload(c, ch)
				sdNotify(a.log, daemon.SdNotifyReady)
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// reload applies a committed config change. Storage and bot token changes
// need a restart.
func (a *App) reload(ctx context.Context, ch config.Change) {
	next := ch.New
	if len(ch.Restart) > 0 {
		a.log.Warn("config keys changed that need a restart", logx.Strings("keys", ch.Restart))
	}

	st, err := mapConfig(next)
	if err != nil {
		// The manager already validated next; this only trips on a mapping bug.
		a.log.Error("config not applied", logx.Err(err))
		return
	}

	a.logs.SetChatTarget(st.resolved.GroupLogChatID, next.Logging.Telegram.ThreadID)
	a.logs.Apply(st.logging)

	a.desktop.Apply(st.desktop)
	a.tgChan.Apply(st.telegram)
	a.sched.Apply(st.resolved.TickInterval, st.reminder)

	switch running := a.schedulerRunning(); {
	case running && !next.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.stopScheduler(stopCtx)
		cancel()
	case !running && next.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.startScheduler(ctx)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) schedulerRunning() bool {
	a.schedMu.Lock()
	defer a.schedMu.Unlock()
	return a.handle != nil
}

func (a *App) startScheduler(ctx context.Context) {
	a.schedMu.Lock()
	defer a.schedMu.Unlock()
	if a.handle == nil {
		a.handle = reminder.StartScheduler(ctx, a.sched)
	}
}

func (a *App) stopScheduler(ctx context.Context) {
	a.schedMu.Lock()
	h := a.handle
	a.handle = nil
	a.schedMu.Unlock()
	reminder.StopScheduler(ctx, h)
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.TickData:
		if d.Delivered > 0 || d.Failed > 0 || d.Errors > 0 {
			a.log.Info("reminder tick",
				logx.Int("owners", d.Owners),
				logx.Int("delivered", d.Delivered),
				logx.Int("failed", d.Failed),
				logx.Int("errors", d.Errors))
		}
	case eventbus.DeliveryData:
		a.log.Debug("event", logx.String("type", e.Type), logx.String("owner", d.Owner),
			logx.String("kind", d.Kind), logx.String("channel", d.Channel))
	case eventbus.LinkData:
		a.log.Info("event", logx.String("type", e.Type), logx.String("owner", d.Owner), logx.Int64("chat_id", d.ChatID))
	default:
		a.log.Debug("event", logx.String("type", e.Type))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.stopScheduler(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, a.adapter.Stop)
	}
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
