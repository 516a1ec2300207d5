package engine

import (
	"context"
	"time"

	"idlebot/internal/eventbus"
	logx "idlebot/pkg/logx"
)

// produce pushes every due job, advances it, then sleeps until the soonest
// job is due. With no jobs at all it just waits for shutdown.
func (e *Engine) produce(ctx context.Context) error {
	log := e.log.With(logx.String("comp", "producer"))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := time.Now()
		for _, j := range e.reg.DueJobs(now) {
			e.q.Push(Dispatch{Job: j, At: now})
			e.reg.Advance(j, now)
			e.dispatched.Add(1)
			e.publish(eventbus.JobDispatched, JobEvent{Key: j.Key, Name: j.Name, Dispatched: now})
			log.Debug("job dispatched", logx.Job(j.Name, j.Key), logx.Int("queue_len", e.q.Len()))
		}

		wait, ok := e.reg.Soonest(time.Now())
		if !ok {
			log.Debug("no jobs registered; waiting for shutdown")
			<-ctx.Done()
			return ctx.Err()
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
