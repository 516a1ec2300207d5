package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"idlebot/internal/transport"
)

type fakeBot struct {
	sent []string
	opts []*tele.SendOptions
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, what.(string))
	if len(opts) > 0 {
		f.opts = append(f.opts, opts[0].(*tele.SendOptions))
	}
	return &tele.Message{ID: len(f.sent)}, nil
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	chunks := splitText(long, 10)
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, chunks)

	noBreak := strings.Repeat("x", 25)
	chunks = splitText(noBreak, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, noBreak, strings.Join(chunks, ""))
}

func TestSendTextChunks(t *testing.T) {
	t.Parallel()

	bot := &fakeBot{}
	s := &Sender{bot: bot}
	text := strings.Repeat("z", telegramTextLimit+10)

	ref, err := s.SendText(context.Background(), transport.ChatTarget{ChatID: 42, ThreadID: 7}, text, &transport.SendOptions{DisablePreview: true})
	require.NoError(t, err)
	assert.Equal(t, transport.MessageRef{ChatID: 42, ThreadID: 7, MessageID: 1}, ref)
	require.Len(t, bot.sent, 2)
	for _, o := range bot.opts {
		assert.Equal(t, 7, o.ThreadID)
		assert.True(t, o.DisableWebPagePreview)
	}
}

func TestSendTextError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := &Sender{bot: &fakeBot{err: boom}}
	_, err := s.SendText(context.Background(), transport.ChatTarget{ChatID: 1}, "hi", nil)
	require.ErrorIs(t, err, boom)
}

func TestSendTextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bot := &fakeBot{}
	_, err := (&Sender{bot: bot}).SendText(ctx, transport.ChatTarget{ChatID: 1}, "hi", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bot.sent)
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Token: "  "})
	require.Error(t, err)
}

func TestNewDoesNotContactAPI(t *testing.T) {
	t.Parallel()

	// Nothing listens on port 1; an online constructor would fail getMe.
	s, err := New(Config{Token: "123:abc", URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.NotNil(t, s)
}
