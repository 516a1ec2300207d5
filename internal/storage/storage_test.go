package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "idlebot/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (Store, string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "history."+driver)
	st, err := Open(Config{Driver: driver, Path: path}, logx.NewWriter(&buf, "debug"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path, &buf
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st, _, _ := openTestStore(t, driver)

			got, err := st.Load(ctx)
			require.NoError(t, err)
			require.Empty(t, got)

			at := time.Unix(1718000000, 250_000_000)
			require.NoError(t, st.Save(ctx, "fetch_and_save(alice)", at))
			require.NoError(t, st.Save(ctx, "check_refinery", at.Add(time.Minute)))

			got, err = st.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.WithinDuration(t, at, got["fetch_and_save(alice)"], time.Microsecond)
			assert.WithinDuration(t, at.Add(time.Minute), got["check_refinery"], time.Microsecond)

			require.NoError(t, st.Delete(ctx, "check_refinery"))
			got, err = st.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, got, 1)

			require.NoError(t, st.Delete(ctx))
			got, err = st.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestFileStoreCorruptContentIsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, path, logs := openTestStore(t, "file")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, logs.String(), "job history corrupt")

	// A save after corruption replaces the file with a valid mapping.
	require.NoError(t, st.Save(ctx, "a", time.Unix(100, 0)))
	got, err = st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"a": time.Unix(100, 0)}, got)
}

func TestFileStoreWrongShapeIsEmpty(t *testing.T) {
	t.Parallel()

	st, path, _ := openTestStore(t, "file")
	for _, content := range []string{"[]", "null", `{"a":"yesterday"}`, "   "} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		got, err := st.Load(context.Background())
		require.NoError(t, err, content)
		assert.Empty(t, got, content)
	}
}

func TestFileStoreFormatAndAtomicWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, path, _ := openTestStore(t, "file")
	require.NoError(t, st.Save(ctx, "k", time.Unix(1700000000, 500_000_000)))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]float64
	require.NoError(t, json.Unmarshal(b, &m))
	assert.InDelta(t, 1700000000.5, m["k"], 1e-6)
}

func TestFileStoreSaveKeepsForeignKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, path, _ := openTestStore(t, "file")
	require.NoError(t, os.WriteFile(path, []byte(`{"other": 42.0}`), 0o600))
	require.NoError(t, st.Save(ctx, "mine", time.Unix(50, 0)))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(42, 0), got["other"])
	assert.Equal(t, time.Unix(50, 0), got["mine"])
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestFileStoreUnreadableHistoryIsNotOverwritten(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, path, logs := openTestStore(t, "file")
	// A directory in place of the file fails every read, even as root.
	require.NoError(t, os.Mkdir(path, 0o755))

	got, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, logs.String(), "job history unreadable")

	require.Error(t, st.Save(ctx, "a", time.Unix(100, 0)))
	require.Error(t, st.Delete(ctx, "a"))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
