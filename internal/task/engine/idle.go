package engine

import (
	"context"
	"runtime/debug"
	"time"

	"idlebot/internal/eventbus"
	logx "idlebot/pkg/logx"
)

// IdleActivity fills the time when no job is queued. Run must return
// promptly once ctx is done: ctx ends as soon as work is pushed or the
// engine shuts down.
type IdleActivity interface {
	Run(ctx context.Context)
}

// TickIdle waits in Tick increments and runs Step on every tick.
type TickIdle struct {
	Tick time.Duration
	// Step is optional. Its error is logged; the activity keeps going.
	Step func(ctx context.Context) error
	Log  logx.Logger
}

func (t TickIdle) Run(ctx context.Context) {
	tick := t.Tick
	if tick <= 0 {
		tick = time.Second
	}
	log := t.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	log.Info(">>> starting idle activity")
	defer log.Info("<<< idle activity interrupted")

	tk := time.NewTicker(tick)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.Step == nil {
				continue
			}
			if err := t.Step(ctx); err != nil && ctx.Err() == nil {
				log.Warn("idle step failed", logx.Err(err))
			}
		}
	}
}

// idle runs the idle activity under a context cancelled by the next Push.
func (e *Engine) idle(ctx context.Context) {
	ready, pending := e.q.Wake()
	if pending {
		return
	}

	idleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ready:
			cancel()
		case <-idleCtx.Done():
		}
	}()

	e.idleActive.Store(true)
	e.publish(eventbus.IdleStarted, nil)
	defer func() {
		e.idleActive.Store(false)
		e.publish(eventbus.IdleStopped, nil)
	}()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("idle activity panicked", logx.String("comp", "idle"), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	e.cfg.Idle.Run(idleCtx)
}

// IdleFunc adapts a plain function to IdleActivity.
type IdleFunc func(ctx context.Context)

func (f IdleFunc) Run(ctx context.Context) { f(ctx) }

