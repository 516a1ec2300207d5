package app

import (
	"context"

	"idlebot/internal/eventbus"
	"idlebot/internal/task/engine"
	logx "idlebot/pkg/logx"
)

const defaultFailureAlertAfter = 3

// failWatch counts consecutive failures per job key and raises an
// error-level record every `after` failures in a row.
type failWatch struct {
	after  int
	log    logx.Logger
	streak map[string]int
}

// newFailWatch returns nil when alerts are disabled (after < 0).
func newFailWatch(after int, log logx.Logger) *failWatch {
	if after < 0 {
		return nil
	}
	if after == 0 {
		after = defaultFailureAlertAfter
	}
	return &failWatch{after: after, log: log, streak: map[string]int{}}
}

// observe updates the streak for one event and reports whether it raised an
// alert.
func (w *failWatch) observe(e eventbus.Event) bool {
	ev, ok := e.Data.(engine.JobEvent)
	if !ok {
		return false
	}
	switch e.Type {
	case eventbus.JobFinished:
		if n := w.streak[ev.Key]; n >= w.after {
			w.log.Info("job recovered", logx.Job(ev.Name, ev.Key), logx.Int("failures", n))
		}
		delete(w.streak, ev.Key)
	case eventbus.JobFailed:
		w.streak[ev.Key]++
		n := w.streak[ev.Key]
		if n%w.after == 0 {
			w.log.Error("job failing repeatedly",
				logx.Job(ev.Name, ev.Key),
				logx.Int("consecutive", n),
				logx.String("last_err", ev.Error),
			)
			return true
		}
	}
	return false
}

func (w *failWatch) run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			w.observe(e)
		}
	}
}
