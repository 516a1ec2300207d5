package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "idlebot/pkg/logx"
)

func TestResolveUnknownKind(t *testing.T) {
	t.Parallel()

	c := New(Config{}, logx.Nop())
	_, err := c.Resolve("click_everything", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.Equal(t, []string{KindCommand, KindProfileFetch, KindStub}, c.Kinds())
}

func TestStubLogsNotImplemented(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := New(Config{}, logx.NewWriter(&buf, "info"))
	fn, err := c.Resolve("STUB", "collect_critters")
	require.NoError(t, err)
	require.NoError(t, fn(context.Background(), "alice"))
	assert.Contains(t, buf.String(), "collect_critters: not implemented")
}

func TestCommandArgv(t *testing.T) {
	t.Parallel()

	argv, err := commandArgv([]string{`python click.py --label "Claim all"`})
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "click.py", "--label", "Claim all"}, argv)

	argv, err = commandArgv([]string{"python", "click.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "click.py"}, argv)

	_, err = commandArgv(nil)
	require.Error(t, err)
	_, err = commandArgv([]string{`"unterminated`})
	require.Error(t, err)
}

func TestCommandExitStatus(t *testing.T) {
	t.Parallel()

	c := New(Config{}, logx.Nop())
	fn, err := c.Resolve(KindCommand, "probe")
	require.NoError(t, err)

	require.NoError(t, fn(context.Background(), "sh -c 'echo ok'"))

	err = fn(context.Background(), "sh -c 'echo nope >&2; exit 3'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHonoursContext(t *testing.T) {
	t.Parallel()

	c := New(Config{}, logx.Nop())
	fn, err := c.Resolve(KindCommand, "slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = fn(ctx, "sleep", "5")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

type profileAPI struct {
	mu      sync.Mutex
	uploads []string
}

func (p *profileAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/profiles/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("profile") {
		case "alice":
			_, _ = io.WriteString(w, `{"level": 42}`)
		case "ghost":
			_, _ = io.WriteString(w, `{}`)
		default:
			http.Error(w, "no such profile", http.StatusNotFound)
		}
	})
	mux.HandleFunc("/api/profiles/upload/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Profile string          `json:"profile"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("upload body: %v", err)
		}
		p.mu.Lock()
		p.uploads = append(p.uploads, body.Profile+":"+string(body.Data))
		p.mu.Unlock()
	})
	return mux
}

func TestProfileFetchSavesAndUploads(t *testing.T) {
	t.Parallel()

	api := &profileAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	dir := t.TempDir()
	c := New(Config{Profile: ProfileConfig{
		BaseURL:    srv.URL + "/api/profiles/",
		UploadURL:  srv.URL + "/api/profiles/upload/",
		DataDir:    dir,
		RatePerSec: 100,
	}}, logx.Nop())
	fn, err := c.Resolve(KindProfileFetch, "fetch_and_save")
	require.NoError(t, err)

	require.NoError(t, fn(context.Background(), "alice"))

	b, err := os.ReadFile(filepath.Join(dir, "alice.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"level": 42}`, string(b))
	assert.Equal(t, []string{"alice:{}", `alice:{"level": 42}`}, api.uploads)
}

func TestProfileFetchFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer((&profileAPI{}).handler(t))
	defer srv.Close()

	c := New(Config{Profile: ProfileConfig{BaseURL: srv.URL + "/api/profiles/", DataDir: t.TempDir(), RatePerSec: 100}}, logx.Nop())
	fn, err := c.Resolve(KindProfileFetch, "fetch_and_save")
	require.NoError(t, err)

	err = fn(context.Background(), "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	require.Error(t, fn(context.Background(), "ghost"))
	require.Error(t, fn(context.Background()))
}

func TestSaveProfileStaysInDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path, err := saveProfile(dir, "../../etc/evil", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evil.json"), path)
}
