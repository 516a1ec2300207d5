package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"idlebot/internal/eventbus"
	logx "idlebot/pkg/logx"
)

// consume is the sole executor: at most one job body runs at a time.
func (e *Engine) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := e.q.Pop(ctx, e.cfg.DequeueTimeout)
		switch {
		case err == nil:
			e.execute(ctx, d)
		case errors.Is(err, ErrDequeueTimeout):
			e.idle(ctx)
		default:
			return err
		}
	}
}

func (e *Engine) execute(ctx context.Context, d Dispatch) {
	job := d.Job
	log := e.log.With(logx.String("comp", "consumer"), logx.Job(job.Name, job.Key))

	start := time.Now()
	e.running.Store(job.Key)
	ev := JobEvent{Key: job.Key, Name: job.Name, Dispatched: d.At, Started: start}
	e.publish(eventbus.JobStarted, ev)
	log.Debug("job started", logx.Duration("queue_delay", start.Sub(d.At)))

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
	}
	err := e.runJob(runCtx, d, log)
	cancel()

	dur := time.Since(start)
	e.running.Store("")
	ev.Duration = dur

	item := HistoryItem{Key: job.Key, Name: job.Name, Dispatched: d.At, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		e.record(item)
		e.failed.Add(1)
		ev.Error = item.Error
		log.Warn("job failed", logx.Err(err), logx.Duration("dur", dur))
		e.publish(eventbus.JobFailed, ev)
		return
	}
	e.record(item)
	e.succeeded.Add(1)
	if dur >= 750*time.Millisecond {
		log.Info("job finished", logx.Duration("dur", dur))
	} else {
		log.Debug("job finished", logx.Duration("dur", dur))
	}
	e.publish(eventbus.JobFinished, ev)

	// The run already happened, so record it even while shutting down.
	sctx, scancel := context.WithTimeout(context.Background(), e.cfg.SaveTimeout)
	defer scancel()
	if err := e.store.Save(sctx, job.Key, d.At); err != nil {
		log.Warn("saving last run failed", logx.Err(err))
	}
}

// runJob calls the task body, converting a panic into an error.
func (e *Engine) runJob(ctx context.Context, d Dispatch, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return d.Job.Run(ctx)
}

func (e *Engine) record(item HistoryItem) {
	e.hmu.Lock()
	e.history = append(e.history, item)
	if n := e.cfg.HistorySize; len(e.history) > n {
		e.history = e.history[len(e.history)-n:]
	}
	e.hmu.Unlock()
}
