package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gmsas95/kipbot/internal/config"
	apperrors "github.com/gmsas95/kipbot/internal/errors"
	"github.com/gmsas95/kipbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openBackend(t *testing.T, backend string) Store {
	t.Helper()
	store, err := New(config.MemoryConfig{Enabled: true, Backend: backend, Path: t.TempDir()}, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBackends_RoundTrip(t *testing.T) {
	for _, backend := range []string{BackendLocal, BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			store := openBackend(t, backend)
			assert.True(t, store.Enabled())

			assert.Empty(t, store.Load(ctx, "alice", 10))

			store.Save(ctx, "alice", "hi", "hello")
			store.Save(ctx, "alice", "how are you", "fine")
			store.Save(ctx, "bob", "yo", "hey")

			assert.Equal(t, []Entry{
				{User: "hi", Assistant: "hello"},
				{User: "how are you", Assistant: "fine"},
			}, store.Load(ctx, "alice", 10))
			assert.Equal(t, []Entry{{User: "yo", Assistant: "hey"}}, store.Load(ctx, "bob", 10))
		})
	}
}

func TestBackends_LoadReturnsMostRecentOldestFirst(t *testing.T) {
	for _, backend := range []string{BackendLocal, BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			store := openBackend(t, backend)

			for i := 0; i < 15; i++ {
				store.Save(ctx, "u", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
			}

			got := store.Load(ctx, "u", 10)
			require.Len(t, got, 10)
			assert.Equal(t, "q5", got[0].User)
			assert.Equal(t, "a14", got[9].Assistant)

			assert.Empty(t, store.Load(ctx, "u", 0))
		})
	}
}

func TestBadger_UserPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	store := openBackend(t, BackendBadger)

	store.Save(ctx, "a", "from a", "x")
	store.Save(ctx, "a/b", "from a/b", "y")

	got := store.Load(ctx, "a", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "from a", got[0].User)
}

func TestDisabledIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mem")
	store, err := New(config.MemoryConfig{Enabled: false, Backend: BackendLocal, Path: dir}, zap.NewNop(), nil)
	require.NoError(t, err)

	assert.False(t, store.Enabled())
	store.Save(context.Background(), "alice", "hi", "hello")
	assert.Equal(t, []Entry{}, store.Load(context.Background(), "alice", 10))

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "disabled memory must not touch the filesystem")
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(config.MemoryConfig{Enabled: true, Backend: "redis", Path: t.TempDir()}, zap.NewNop(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMemoryBackendUnknown)
}

func TestFileStore_LayoutIsJSONL(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, zap.NewNop(), nil)

	store.Save(context.Background(), "12345", "안녕", "반가워요")

	data, err := os.ReadFile(filepath.Join(dir, "12345.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, `{"user":"안녕","assistant":"반가워요"}`+"\n", string(data))
}

func TestFileStore_MalformedLineYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()
	store := NewFileStore(dir, zap.NewNop(), m)

	content := `{"user":"a","assistant":"b"}
not json
{"user":"c","assistant":"d"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u.jsonl"), []byte(content), 0600))

	assert.Equal(t, []Entry{}, store.Load(context.Background(), "u", 10))
	expected := `
# HELP kipbot_memory_errors_total Swallowed memory store failures by operation.
# TYPE kipbot_memory_errors_total counter
kipbot_memory_errors_total{op="load"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "kipbot_memory_errors_total"))
}

func TestFileStore_SaveFailureIsSwallowed(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing", "dir"), zap.NewNop(), nil)

	assert.NotPanics(t, func() {
		store.Save(context.Background(), "u", "a", "b")
	})
	assert.Empty(t, store.Load(context.Background(), "u", 10))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "12345", fileName("12345"))
	assert.Equal(t, ".._etc_passwd", fileName("../etc/passwd"))
	assert.Equal(t, "_..", fileName(".."))
	assert.Equal(t, "_", fileName(""))
}
