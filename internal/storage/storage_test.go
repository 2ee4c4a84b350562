package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "horoscopebot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}

	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestFileStoreFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "logs", "horoscope-messages.log")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	at := time.Date(2026, time.October, 19, 6, 0, 1, 234_000_000, time.FixedZone("CEST", 2*3600))
	require.NoError(t, st.AppendRun(context.Background(), Entry{At: at, Kind: "daily", Body: "hola\nmundo"}))
	require.NoError(t, st.AppendRun(context.Background(), Entry{At: at.Add(time.Hour), Kind: "weekly", Body: "semana"}))
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"\n=== 2026-10-19T04:00:01.234Z ===\nhola\nmundo\n"+
			"\n=== 2026-10-19T05:00:01.234Z ===\nsemana\n",
		string(b))

	assert.Error(t, st.AppendRun(context.Background(), Entry{Body: "late"}))
}

func TestFileStoreAppendsAcrossOpens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.log")
	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		require.NoError(t, st.AppendRun(context.Background(), Entry{Body: "x"}))
		require.NoError(t, st.Close())
	}
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(b), "\n=== "))
}

func TestFileStoreRecreatesRemovedDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	path := filepath.Join(dir, "horoscope-messages.log")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendRun(context.Background(), Entry{Body: "primero"}))
	require.NoError(t, os.RemoveAll(dir))

	require.NoError(t, st.AppendRun(context.Background(), Entry{Body: "segundo"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "primero")
	assert.Contains(t, string(b), "segundo")
}

func TestFileStoreRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.AppendRun(ctx, Entry{Kind: "daily", Body: "uno"}))
	require.NoError(t, st.AppendRun(ctx, Entry{Kind: "weekly", Body: "dos"}))

	recent, err := st.(*sqliteStore).Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "weekly", recent[0].Kind)
	assert.Equal(t, "dos", recent[0].Body)
	assert.Equal(t, "uno", recent[1].Body)
	assert.False(t, recent[1].At.IsZero())
}
