package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "taskpilot/pkg/logx"
)

// Service owns the tick loop around an Evaluator.
type Service struct {
	ev  *Evaluator
	log logx.Logger
	now func() time.Time

	mu       sync.Mutex
	interval time.Duration
	c        *cron.Cron
	entry    cron.EntryID
	tickCtx  context.Context
}

func NewService(ev *Evaluator, interval time.Duration, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{ev: ev, log: log, now: time.Now, interval: interval}
}

// Evaluator returns the wrapped evaluator.
func (s *Service) Evaluator() *Evaluator { return s.ev }

// Running reports whether the tick loop is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Start loads the persisted ledger, runs one tick synchronously and then
// schedules a tick every interval. Calling Start on a running service is a no-op.
//
// Ticks run on a context detached from ctx: cancelling ctx or calling Stop
// does not abort a tick already in flight.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return
	}
	tickCtx := context.WithoutCancel(ctx)
	c := newRunner(s.log)
	s.entry = c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	s.c = c
	s.tickCtx = tickCtx
	interval := s.interval
	s.mu.Unlock()

	if n, err := s.ev.Ledger().Load(tickCtx, s.now()); err != nil {
		s.log.Warn("ledger not restored", logx.Err(err))
	} else if n > 0 {
		s.log.Info("ledger restored", logx.Int("fires", n))
	}

	s.tick()

	s.mu.Lock()
	// Stop may have run during the first tick.
	if s.c == c {
		c.Start()
	}
	s.mu.Unlock()
	s.log.Info("scheduler started", logx.Duration("interval", interval))
}

// Stop halts the tick loop and waits (bounded by ctx) for in-flight ticks.
// It is a no-op when not running.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	start := time.Now()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Apply changes the tick interval and evaluator options at runtime.
func (s *Service) Apply(interval time.Duration, opts Options) {
	s.ev.Apply(opts)
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return
	}
	s.interval = interval
	if s.c != nil {
		s.c.Remove(s.entry)
		s.entry = s.c.Schedule(cron.Every(interval), cron.FuncJob(s.tick))
		s.log.Info("tick interval changed", logx.Duration("interval", interval))
	}
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.tickCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.ev.Tick(ctx, s.now())
}

// Handle is the opaque value returned by StartScheduler.
type Handle struct {
	svc  *Service
	once sync.Once
}

// StartScheduler starts svc and returns a handle for StopScheduler.
func StartScheduler(ctx context.Context, svc *Service) *Handle {
	svc.Start(ctx)
	return &Handle{svc: svc}
}

// StopScheduler stops the scheduler behind h. Nil handles and repeated calls
// are no-ops.
func StopScheduler(ctx context.Context, h *Handle) {
	if h == nil || h.svc == nil {
		return
	}
	h.once.Do(func() { h.svc.Stop(ctx) })
}
