package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"idlebot/internal/eventbus"
	"idlebot/internal/runtime/supervisor"
	"idlebot/internal/task/schedule"
	logx "idlebot/pkg/logx"
)

// Engine runs exactly two workers over one queue: a producer that turns due
// jobs into dispatches and a consumer that executes them one at a time.
type Engine struct {
	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	reg   *schedule.Registry
	store RunRecorder
	q     *Queue

	mu  sync.Mutex
	sup *supervisor.Supervisor

	dispatched atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	running    atomic.Value // string
	idleActive atomic.Bool

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds an engine. bus may be nil.
func New(cfg Config, reg *schedule.Registry, store RunRecorder, log logx.Logger, bus eventbus.Bus) (*Engine, error) {
	if reg == nil {
		return nil, ErrNoRegistry
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	if cfg.Idle == nil {
		cfg.Idle = TickIdle{Log: log.With(logx.String("comp", "idle"))}
	}
	e := &Engine{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		reg:   reg,
		store: store,
		q:     NewQueue(),
	}
	e.running.Store("")
	return e, nil
}

// Start launches the producer and consumer under ctx. Cancelling ctx has the
// same effect as Stop without the wait.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sup != nil {
		return ErrStarted
	}
	if e.store == nil {
		e.store = discardRecorder{}
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(e.log.With(logx.String("comp", "engine"))))
	// Registry and queue state outlive a worker restart.
	backoff := supervisor.WithRestartBackoff(100*time.Millisecond, 5*time.Second)
	sup.GoRestart("producer", e.produce, supervisor.WithPublishFirstError(true), backoff)
	sup.GoRestart("consumer", e.consume, supervisor.WithPublishFirstError(true), backoff)
	e.sup = sup

	e.log.Info("engine started",
		logx.Int("jobs", e.reg.Len()),
		logx.Duration("dequeue_timeout", e.cfg.DequeueTimeout),
	)
	return nil
}

// Stop cancels both workers and waits for them, bounded by ctx. A job body
// in flight sees its context cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}

	start := time.Now()
	if err := sup.Stop(ctx); err != nil {
		e.log.Warn("engine stop incomplete", logx.Err(err), logx.Duration("waited", time.Since(start)))
		return err
	}
	e.log.Info("engine stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// Wait blocks until both workers exit, which happens once the Start context
// is cancelled or Stop is called.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}
	return sup.Wait(ctx)
}

func (e *Engine) Snapshot() Snapshot {
	e.hmu.Lock()
	h := make([]HistoryItem, len(e.history))
	copy(h, e.history)
	e.hmu.Unlock()

	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	var workers []supervisor.Stats
	if sup != nil {
		workers = sup.Stats()
	}

	running, _ := e.running.Load().(string)
	return Snapshot{
		QueueLen:       e.q.Len(),
		Dispatched:     e.dispatched.Load(),
		Succeeded:      e.succeeded.Load(),
		Failed:         e.failed.Load(),
		Running:        running,
		IdleActive:     e.idleActive.Load(),
		DequeueTimeout: e.cfg.DequeueTimeout,
		History:        h,
		Workers:        workers,
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

type discardRecorder struct{}

func (discardRecorder) Save(context.Context, string, time.Time) error { return nil }
