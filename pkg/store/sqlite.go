package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kode4food/cascade/pkg/api"
)

// SQLiteStore keeps one row per run, replaced on every save
type SQLiteStore struct {
	db *sql.DB
}

//go:embed schema.sql
var schemaSQL string

const (
	upsertSnapshot = `
INSERT INTO snapshots (run_id, flow, status, revision, saved_at, data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
    flow = excluded.flow,
    status = excluded.status,
    revision = excluded.revision,
    saved_at = excluded.saved_at,
    data = excluded.data`

	selectSnapshot = `SELECT data FROM snapshots WHERE run_id = ?`
)

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite creates or opens the database at path and applies the schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", ErrInvalidURL)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initDB(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(
	ctx context.Context, id api.RunID, snap *api.Snapshot,
) error {
	if err := checkSave(id, snap); err != nil {
		return err
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertSnapshot,
		string(id), snap.Flow, string(snap.Status), snap.Revision,
		snap.SavedAt.UTC().Format(time.RFC3339Nano), data,
	)
	return err
}

func (s *SQLiteStore) Load(
	ctx context.Context, id api.RunID,
) (*api.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, selectSnapshot, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
