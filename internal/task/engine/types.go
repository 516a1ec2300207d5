package engine

import (
	"context"
	"time"

	"idlebot/internal/runtime/supervisor"
	"idlebot/internal/task/schedule"
)

// Config controls the producer/consumer pipeline.
type Config struct {
	// DequeueTimeout is how long the consumer waits for work before going idle.
	DequeueTimeout time.Duration
	// SaveTimeout bounds one RunRecorder.Save call.
	SaveTimeout time.Duration
	HistorySize int

	// Idle runs whenever the queue stays empty for DequeueTimeout.
	// Nil means TickIdle with default settings.
	Idle IdleActivity
}

func (c Config) withDefaults() Config {
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = time.Second
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 5 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return c
}

// RunRecorder persists the dispatch time of each successful run.
// storage.Store satisfies it.
type RunRecorder interface {
	Save(ctx context.Context, key string, at time.Time) error
}

// Dispatch is one queued execution: the job and the time it became eligible.
type Dispatch struct {
	Job *schedule.Job
	At  time.Time
}

type HistoryItem struct {
	Key        string
	Name       string
	Dispatched time.Time
	Started    time.Time
	Duration   time.Duration
	Error      string
}

// JobEvent is the Data of every job.* event on the bus.
type JobEvent struct {
	Key        string        `json:"key"`
	Name       string        `json:"name"`
	Dispatched time.Time     `json:"dispatched"`
	Started    time.Time     `json:"started,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	QueueLen   int
	Dispatched uint64
	Succeeded  uint64
	Failed     uint64
	// Running is the key of the job currently executing, or "".
	Running    string
	IdleActive bool

	DequeueTimeout time.Duration
	History        []HistoryItem
	Workers        []supervisor.Stats
}
