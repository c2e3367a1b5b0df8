package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/anstrom/nmapdeck/internal/errors"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/results"
)

// The DDL and queries stay within what sqlite3 and postgres both accept.
// Timestamps are stored as unix nanoseconds so neither driver has to
// convert time values.
const (
	schemaSQL = `
		CREATE TABLE IF NOT EXISTS scan_history (
			id          TEXT PRIMARY KEY,
			targets     TEXT NOT NULL,
			mode        TEXT NOT NULL,
			file        TEXT NOT NULL,
			hosts_total INTEGER NOT NULL DEFAULT 0,
			hosts_up    INTEGER NOT NULL DEFAULT 0,
			hosts_down  INTEGER NOT NULL DEFAULT 0,
			created_at  BIGINT NOT NULL
		)`

	insertSQL = `
		INSERT INTO scan_history (id, targets, mode, file, hosts_total, hosts_up, hosts_down, created_at)
		VALUES (:id, :targets, :mode, :file, :hosts_total, :hosts_up, :hosts_down, :created_at)`

	pruneSQL = `
		DELETE FROM scan_history WHERE id NOT IN (
			SELECT id FROM scan_history ORDER BY created_at DESC, id DESC LIMIT ?
		)`

	listSQL = `
		SELECT id, targets, mode, file, hosts_total, hosts_up, hosts_down, created_at
		FROM scan_history ORDER BY created_at DESC, id DESC LIMIT ?`

	getSQL = `
		SELECT id, targets, mode, file, hosts_total, hosts_up, hosts_down, created_at
		FROM scan_history WHERE id = ?`

	clearSQL = `DELETE FROM scan_history`
)

type entryRow struct {
	ID         string `db:"id"`
	Targets    string `db:"targets"`
	Mode       string `db:"mode"`
	File       string `db:"file"`
	HostsTotal int    `db:"hosts_total"`
	HostsUp    int    `db:"hosts_up"`
	HostsDown  int    `db:"hosts_down"`
	CreatedAt  int64  `db:"created_at"`
}

func toRow(e Entry) entryRow {
	return entryRow{
		ID:         e.ID,
		Targets:    e.Targets,
		Mode:       e.Mode,
		File:       e.File,
		HostsTotal: e.Summary.Total,
		HostsUp:    e.Summary.Up,
		HostsDown:  e.Summary.Down,
		CreatedAt:  e.Timestamp.UnixNano(),
	}
}

func (r entryRow) entry() Entry {
	return Entry{
		ID:      r.ID,
		Targets: r.Targets,
		Mode:    r.Mode,
		File:    r.File,
		Summary: results.Summary{
			Total: r.HostsTotal,
			Up:    r.HostsUp,
			Down:  r.HostsDown,
		},
		Timestamp: time.Unix(0, r.CreatedAt).UTC(),
	}
}

// SQLStore keeps history in a SQL database through sqlx.
type SQLStore struct {
	db      *sqlx.DB
	limit   int
	logger  *logging.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewSQLStore wraps an open database. Call Init before first use on a
// fresh database.
func NewSQLStore(db *sqlx.DB, limit int, logger *logging.Logger, rec metrics.Recorder) *SQLStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &SQLStore{
		db:      db,
		limit:   limit,
		logger:  logger,
		metrics: rec,
		now:     time.Now,
	}
}

// Init creates the history table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "create schema", err)
	}
	return nil
}

// Add inserts entry and prunes rows beyond the limit in one transaction.
func (s *SQLStore) Add(ctx context.Context, entry Entry) (stored Entry, err error) {
	defer s.observe("add", time.Now(), &err)

	entry = stamp(entry, s.now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Entry{}, errors.WrapStoreError(errors.CodeStoreConnect, "begin add", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
				s.logger.ErrorHistory("Failed to roll back history insert", rbErr)
			}
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertSQL, toRow(entry)); err != nil {
		return Entry{}, errors.WrapStoreError(errors.CodeStoreQuery, "insert entry", err)
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(pruneSQL), s.limit); err != nil {
		return Entry{}, errors.WrapStoreError(errors.CodeStoreQuery, "prune entries", err)
	}
	if err = tx.Commit(); err != nil {
		return Entry{}, errors.WrapStoreError(errors.CodeStoreQuery, "commit add", err)
	}
	return entry, nil
}

// List returns up to limit entries, newest first.
func (s *SQLStore) List(ctx context.Context) (entries []Entry, err error) {
	defer s.observe("list", time.Now(), &err)

	var rows []entryRow
	if err = s.db.SelectContext(ctx, &rows, s.db.Rebind(listSQL), s.limit); err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreQuery, "list entries", err)
	}

	entries = make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

// Get returns the entry with the given ID or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (entry Entry, err error) {
	defer s.observe("get", time.Now(), &err)

	var row entryRow
	err = s.db.GetContext(ctx, &row, s.db.Rebind(getSQL), id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, errors.WrapStoreError(errors.CodeStoreQuery, "get entry", err)
	}
	return row.entry(), nil
}

// Clear deletes every entry.
func (s *SQLStore) Clear(ctx context.Context) (err error) {
	defer s.observe("clear", time.Now(), &err)

	if _, err = s.db.ExecContext(ctx, clearSQL); err != nil {
		return errors.WrapStoreError(errors.CodeStoreQuery, "clear entries", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// observe records the operation. A lookup of an unknown ID is not a failure.
func (s *SQLStore) observe(op string, start time.Time, errp *error) {
	err := *errp
	success := err == nil || stderrors.Is(err, ErrNotFound)
	s.metrics.RecordHistoryOperation(op, time.Since(start), success)
	if !success {
		s.logger.ErrorHistory("History operation failed", err, "operation", op)
	}
}
