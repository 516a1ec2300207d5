package schedule

import (
	"context"
	"strings"
	"time"
)

// Func is a task body. A non-nil error or a panic is the only failure channel.
type Func func(ctx context.Context, args ...string) error

type Job struct {
	Name     string
	Task     string // catalogue kind, for display only
	Func     Func
	Args     []string
	Interval time.Duration
	// Timeout bounds one execution; 0 means the run is bounded only by shutdown.
	Timeout time.Duration
	Key     string

	// NextRun is owned by the Registry.
	NextRun time.Time
}

func (j *Job) Run(ctx context.Context) error {
	return j.Func(ctx, j.Args...)
}

// DeriveKey builds the default persistence key: "name(arg1,arg2)".
// A job without arguments is keyed by its name alone.
func DeriveKey(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + "(" + strings.Join(args, ",") + ")"
}

// Spec declares a job before it is placed in a Registry.
type Spec struct {
	Name     string
	Task     string
	Func     Func
	Args     []string
	Interval time.Duration
	Timeout  time.Duration
	Key      string // optional; DeriveKey(Name, Args) when empty
}

func (s Spec) key() string {
	if k := strings.TrimSpace(s.Key); k != "" {
		return k
	}
	return DeriveKey(s.Name, s.Args)
}
