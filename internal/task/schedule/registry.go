package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrDuplicateKey = errors.New("duplicate job key")

// Registry is the static job list plus each job's next eligible time.
//
// The producer is the only caller of Advance; other readers use Entries.
type Registry struct {
	mu   sync.Mutex
	jobs []*Job
}

// NewRegistry validates specs and cold-starts every job at now+Interval.
// Two jobs resolving to the same key would overwrite each other's history,
// so that is rejected.
func NewRegistry(now time.Time, specs ...Spec) (*Registry, error) {
	r := &Registry{jobs: make([]*Job, 0, len(specs))}
	seen := make(map[string]int, len(specs))
	for i, s := range specs {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, fmt.Errorf("job #%d: name required", i+1)
		}
		if s.Func == nil {
			return nil, fmt.Errorf("job %q: no task function", name)
		}
		if s.Interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be > 0", name)
		}
		key := s.key()
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w %q (jobs #%d and #%d); set an explicit key: on one of them", ErrDuplicateKey, key, prev+1, i+1)
		}
		seen[key] = i

		r.jobs = append(r.jobs, &Job{
			Name:     name,
			Task:     s.Task,
			Func:     s.Func,
			Args:     append([]string(nil), s.Args...),
			Interval: s.Interval,
			Timeout:  s.Timeout,
			Key:      key,
			NextRun:  now.Add(s.Interval),
		})
	}
	return r, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Restore seeds warm-start times: a job with a recorded last run becomes due
// at lastRun+Interval, even if that is already in the past. Unknown keys are
// ignored and returned for logging.
func (r *Registry) Restore(lastRuns map[string]time.Time) (restored int, unknown []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[string]struct{}, len(r.jobs))
	for _, j := range r.jobs {
		known[j.Key] = struct{}{}
		if at, ok := lastRuns[j.Key]; ok {
			j.NextRun = at.Add(j.Interval)
			restored++
		}
	}
	for k := range lastRuns {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return restored, unknown
}

// DueJobs returns every job with NextRun <= now, in registry order.
func (r *Registry) DueJobs(now time.Time) []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*Job
	for _, j := range r.jobs {
		if !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	return due
}

// Advance anchors the next run at the dispatch time: NextRun = now + Interval.
func (r *Registry) Advance(j *Job, now time.Time) {
	r.mu.Lock()
	j.NextRun = now.Add(j.Interval)
	r.mu.Unlock()
}

// Soonest returns how long until the earliest NextRun, clamped at zero.
// ok is false when the registry is empty.
func (r *Registry) Soonest(now time.Time) (wait time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.jobs) == 0 {
		return 0, false
	}
	next := r.jobs[0].NextRun
	for _, j := range r.jobs[1:] {
		if j.NextRun.Before(next) {
			next = j.NextRun
		}
	}
	return max(0, next.Sub(now)), true
}

// Entry is a read-only copy of a job's schedule state.
type Entry struct {
	Name     string
	Task     string
	Key      string
	Args     []string
	Interval time.Duration
	NextRun  time.Time
}

func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, Entry{
			Name:     j.Name,
			Task:     j.Task,
			Key:      j.Key,
			Args:     append([]string(nil), j.Args...),
			Interval: j.Interval,
			NextRun:  j.NextRun,
		})
	}
	return out
}
