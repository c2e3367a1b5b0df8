package history

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/results"
)

func TestMemoryStoreAddAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 1; i <= 5; i++ {
		_, err := store.Add(ctx, Entry{Targets: fmt.Sprintf("10.0.0.%d", i), Mode: "quick"})
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3, "bounded by the limit")

	assert.Equal(t, "10.0.0.5", entries[0].Targets, "newest first")
	assert.Equal(t, "10.0.0.4", entries[1].Targets)
	assert.Equal(t, "10.0.0.3", entries[2].Targets)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestMemoryStoreAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	stored, err := store.Add(ctx, Entry{
		ID:      "caller-supplied",
		Targets: "scanme.nmap.org",
		Mode:    "service-detect",
		File:    "output/nmap_scan_x.xml",
		Summary: results.Summary{Total: 1, Up: 1},
	})
	require.NoError(t, err)

	assert.NotEqual(t, "caller-supplied", stored.ID)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, time.UTC, stored.Timestamp.Location())

	got, err := store.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	store := NewMemoryStore(10)

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	_, err := store.Add(ctx, Entry{Targets: "10.0.0.1"})
	require.NoError(t, err)
	before, err := store.List(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, before, 1, "earlier listings are unaffected")
	assert.NoError(t, store.Close())
}

func TestMemoryStoreConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(5)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Add(ctx, Entry{Targets: fmt.Sprintf("host-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestNewMemoryStoreDefaultLimit(t *testing.T) {
	store := NewMemoryStore(0)
	assert.Equal(t, DefaultLimit, store.limit)
}

func TestOpenMemory(t *testing.T) {
	store, err := Open(context.Background(), config.HistoryConfig{Limit: 2, Driver: DriverMemory}, nil, nil)
	require.NoError(t, err)
	defer store.Close()

	mem, ok := store.(*MemoryStore)
	require.True(t, ok)
	assert.Equal(t, 2, mem.limit)
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + t.TempDir() + "/history.db"

	store, err := Open(ctx, config.HistoryConfig{Limit: 2, Driver: "sqlite3", DSN: dsn}, nil, nil)
	var storeErr *errors.StoreError
	if stderrors.As(err, &storeErr) && storeErr.Cause != nil &&
		strings.Contains(storeErr.Cause.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver needs cgo")
	}
	require.NoError(t, err)
	defer store.Close()

	for _, target := range []string{"a", "b", "c"} {
		_, err := store.Add(ctx, Entry{Targets: target, Mode: "ping"})
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Targets)
	assert.Equal(t, "b", entries[1].Targets)

	got, err := store.Get(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1], got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, entries[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
