package storage

import (
	"context"
	"errors"
	"math"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON object file (default)
//   - "sqlite": SQLite database file
//   - "memory" / "none": nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store records when each job key last ran successfully.
//
// Load never fails on unreadable content: corruption is logged and reported
// as an empty history. Save is called only by the consumer.
type Store interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, key string, at time.Time) error
	// Delete forgets the given keys, or every key when none are given.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

func toUnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
