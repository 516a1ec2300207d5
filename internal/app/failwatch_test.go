package app

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idlebot/internal/eventbus"
	"idlebot/internal/task/engine"
	logx "idlebot/pkg/logx"
)

func failed(key string) eventbus.Event {
	return eventbus.Event{Type: eventbus.JobFailed, Data: engine.JobEvent{Key: key, Name: key, Error: "boom"}}
}

func finished(key string) eventbus.Event {
	return eventbus.Event{Type: eventbus.JobFinished, Data: engine.JobEvent{Key: key, Name: key}}
}

func TestFailWatchAlertsEveryNthFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := newFailWatch(0, logx.NewWriter(&buf, "debug"))
	require.NotNil(t, w)
	assert.Equal(t, defaultFailureAlertAfter, w.after)

	var alerts []int
	for i := 1; i <= 7; i++ {
		if w.observe(failed("a")) {
			alerts = append(alerts, i)
		}
	}
	assert.Equal(t, []int{3, 6}, alerts)
	assert.Equal(t, 2, strings.Count(buf.String(), "job failing repeatedly"))
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestFailWatchResetsOnSuccess(t *testing.T) {
	t.Parallel()

	w := newFailWatch(2, logx.Nop())
	assert.False(t, w.observe(failed("a")))
	assert.False(t, w.observe(finished("a")))
	assert.False(t, w.observe(failed("a")))
	assert.True(t, w.observe(failed("a")))

	// streaks are per key
	assert.False(t, w.observe(failed("b")))
	assert.True(t, w.observe(failed("b")))
}

func TestFailWatchIgnoresForeignEvents(t *testing.T) {
	t.Parallel()

	w := newFailWatch(1, logx.Nop())
	assert.False(t, w.observe(eventbus.Event{Type: eventbus.IdleStarted}))
	assert.False(t, w.observe(eventbus.Event{Type: eventbus.JobFailed, Data: "not a job event"}))
}

func TestFailWatchDisabled(t *testing.T) {
	t.Parallel()
	assert.Nil(t, newFailWatch(-1, logx.Nop()))
}
