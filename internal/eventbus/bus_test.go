package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(4, JobFailed)
	defer unsubFailed()

	b.Publish(Event{Type: JobStarted})
	b.Publish(Event{Type: JobFailed, Data: "x"})

	require.Len(t, all, 2)
	require.Len(t, failed, 1)
	e := <-failed
	assert.Equal(t, JobFailed, e.Type)
	assert.False(t, e.Time.IsZero())
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: IdleStarted})
	b.Publish(Event{Type: IdleStopped})
	assert.Len(t, ch, 1)

	unsub()
	unsub()
	_, open := <-ch
	// First receive drains the buffered event; the channel is closed after.
	assert.True(t, open)
	_, open = <-ch
	assert.False(t, open)

	b.Publish(Event{Type: IdleStarted})
}
