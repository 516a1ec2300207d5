package logx

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idlebot/internal/transport"
)

type fakeSender struct {
	got chan string
	to  chan transport.ChatTarget
}

func newFakeSender() *fakeSender {
	return &fakeSender{got: make(chan string, 16), to: make(chan transport.ChatTarget, 16)}
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.to <- to
	f.got <- text
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func TestFormatTelegramRecord(t *testing.T) {
	t.Parallel()

	line := `{"level":"error","time":"2024-01-01T00:00:00Z","message":"job failing repeatedly","key":"fetch(alice)","consecutive":3}`
	got := formatTelegramRecord([]byte(line))
	assert.Equal(t, "[ERROR] job failing repeatedly\n- consecutive=3\n- key=fetch(alice)", got)

	assert.Equal(t, "plain text", formatTelegramRecord([]byte("plain text\n")))
	assert.Len(t, formatTelegramRecord([]byte(strings.Repeat("x", 5000))), 3500)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("日本語", 10)
	for _, n := range []int{4, 5, 10, 11, 12, 20} {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "n=%d got %q", n, got)
		assert.LessOrEqual(t, len(got), n)
	}
	assert.Equal(t, "日本語日本...", truncate(s, 18))
	assert.Equal(t, "日", truncate("日本", 5))
}

func TestTelegramSinkForwardsAboveMinLevel(t *testing.T) {
	sender := newFakeSender()
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{MinLevel: "warn", RatePerSec: 100}}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	svc.SetTelegramTarget(-100123, 9)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}})

	log.Info("quiet")
	log.Warn("loud", String("job", "tick"))

	select {
	case msg := <-sender.got:
		assert.Contains(t, msg, "[WARN] loud")
		assert.Contains(t, msg, "- job=tick")
	case <-time.After(2 * time.Second):
		t.Fatal("warn record was not forwarded")
	}
	to := <-sender.to
	assert.Equal(t, transport.ChatTarget{ChatID: -100123, ThreadID: 9}, to)

	select {
	case msg := <-sender.got:
		require.Failf(t, "unexpected record", "got %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTelegramSinkWithoutTargetDrops(t *testing.T) {
	sender := newFakeSender()
	svc, log := New(Config{Telegram: TelegramConfig{Enabled: true}}, sender)
	t.Cleanup(func() { _ = svc.Close() })

	log.Error("nobody listens")
	select {
	case msg := <-sender.got:
		require.Failf(t, "unexpected record", "got %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
