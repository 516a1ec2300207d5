package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, ...string) error { return nil }

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestColdStart(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(t0,
		Spec{Name: "a", Func: noop, Interval: 2 * time.Second},
		Spec{Name: "b", Func: noop, Interval: 5 * time.Second},
	)
	require.NoError(t, err)

	es := r.Entries()
	require.Len(t, es, 2)
	assert.Equal(t, t0.Add(2*time.Second), es[0].NextRun)
	assert.Equal(t, t0.Add(5*time.Second), es[1].NextRun)
	assert.Empty(t, r.DueJobs(t0))
}

func TestWarmStartKeepsOverdue(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(t0,
		Spec{Name: "fetch_and_save", Args: []string{"alice"}, Func: noop, Interval: time.Hour},
		Spec{Name: "fresh", Func: noop, Interval: time.Minute},
	)
	require.NoError(t, err)

	last := t0.Add(-3 * time.Hour)
	restored, unknown := r.Restore(map[string]time.Time{
		"fetch_and_save(alice)": last,
		"gone_job":              t0,
	})
	assert.Equal(t, 1, restored)
	assert.Equal(t, []string{"gone_job"}, unknown)

	es := r.Entries()
	// lastRun + interval, even though that is two hours in the past.
	assert.Equal(t, last.Add(time.Hour), es[0].NextRun)
	assert.Equal(t, t0.Add(time.Minute), es[1].NextRun)

	due := r.DueJobs(t0)
	require.Len(t, due, 1)
	assert.Equal(t, "fetch_and_save(alice)", due[0].Key)
}

func TestAdvanceAnchorsAtDispatchTime(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(t0, Spec{Name: "a", Func: noop, Interval: 10 * time.Second})
	require.NoError(t, err)

	dispatch := t0.Add(10 * time.Second)
	due := r.DueJobs(dispatch)
	require.Len(t, due, 1)
	r.Advance(due[0], dispatch)
	assert.Equal(t, dispatch.Add(10*time.Second), r.Entries()[0].NextRun)
}

func TestDueJobsRegistryOrder(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(t0,
		Spec{Name: "slow", Func: noop, Interval: 3 * time.Second},
		Spec{Name: "fast", Func: noop, Interval: time.Second},
		Spec{Name: "mid", Func: noop, Interval: 2 * time.Second},
	)
	require.NoError(t, err)

	due := r.DueJobs(t0.Add(5 * time.Second))
	require.Len(t, due, 3)
	assert.Equal(t, []string{"slow", "fast", "mid"}, []string{due[0].Name, due[1].Name, due[2].Name})
}

func TestSoonest(t *testing.T) {
	t.Parallel()

	empty, err := NewRegistry(t0)
	require.NoError(t, err)
	_, ok := empty.Soonest(t0)
	assert.False(t, ok)

	r, err := NewRegistry(t0,
		Spec{Name: "a", Func: noop, Interval: 5 * time.Second},
		Spec{Name: "b", Func: noop, Interval: 2 * time.Second},
	)
	require.NoError(t, err)

	wait, ok := r.Soonest(t0)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	wait, ok = r.Soonest(t0.Add(time.Minute))
	require.True(t, ok)
	assert.Zero(t, wait, "overdue jobs clamp to zero")
}

func TestDuplicateKeysRejected(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(t0,
		Spec{Name: "fetch_and_save", Args: []string{"alice"}, Func: noop, Interval: 20 * time.Minute},
		Spec{Name: "fetch_and_save", Args: []string{"alice"}, Func: noop, Interval: 4 * time.Hour},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.Contains(t, err.Error(), "explicit key")

	_, err = NewRegistry(t0,
		Spec{Name: "fetch_and_save", Args: []string{"alice"}, Func: noop, Interval: 20 * time.Minute},
		Spec{Name: "fetch_and_save", Args: []string{"alice"}, Key: "fetch_4h", Func: noop, Interval: 4 * time.Hour},
	)
	require.NoError(t, err)
}

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(t0, Spec{Name: "", Func: noop, Interval: time.Second})
	require.Error(t, err)
	_, err = NewRegistry(t0, Spec{Name: "a", Interval: time.Second})
	require.Error(t, err)
	_, err = NewRegistry(t0, Spec{Name: "a", Func: noop})
	require.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "collect_critters", DeriveKey("collect_critters", nil))
	assert.Equal(t, "fetch_and_save(alice,eu)", DeriveKey("fetch_and_save", []string{"alice", "eu"}))
}
