// Package history keeps a bounded, newest-first record of completed scans.
// Entries live in memory by default; a SQL backend (sqlite3 or postgres)
// keeps them across restarts.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	// SQL drivers selectable through history.driver.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/results"
)

// DefaultLimit is the number of entries kept when no limit is configured.
const DefaultLimit = 10

// DriverMemory selects the in-process store.
const DriverMemory = "memory"

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = &errors.StoreError{
	Code:    errors.CodeNotFound,
	Message: "History entry not found",
}

// Entry is one recorded scan.
type Entry struct {
	ID        string          `json:"id"`
	Targets   string          `json:"targets"`
	Mode      string          `json:"mode"`
	File      string          `json:"file"`
	Summary   results.Summary `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is a bounded scan history. List returns at most the configured
// limit of entries, newest first.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/anstrom/nmapdeck/internal/history Store
type Store interface {
	Add(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Clear(ctx context.Context) error
	Close() error
}

// Open builds the store selected by cfg. SQL stores get their schema
// created on open.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *logging.Logger,
	rec metrics.Recorder) (Store, error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	if cfg.Driver == "" || cfg.Driver == DriverMemory {
		return NewMemoryStore(limit), nil
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreConnect, "connect", err)
	}

	store := NewSQLStore(db, limit, logger, rec)
	if err := store.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// stamp fills in the fields the store owns.
func stamp(entry Entry, now time.Time) Entry {
	entry.ID = uuid.NewString()
	entry.Timestamp = now.UTC()
	return entry
}
