// Package sqlite stores bridge log records in a local SQLite database, the
// on-device backend for the event log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tinywideclouds/go-notification-bridge/internal/eventlog"
)

type migration struct {
	version int
	sql     string
}

// migrations must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (namespace, key)
);
INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// RecordStore implements eventlog.Store on SQLite.
type RecordStore struct {
	db *sqlx.DB
}

// NewRecordStore opens (or creates) the database at path, enables WAL mode and
// applies pending migrations. ":memory:" gives a private in-memory database.
func NewRecordStore(path string) (*RecordStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &RecordStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *RecordStore) Put(ctx context.Context, namespace, key, text string) error {
	const query = `INSERT OR REPLACE INTO records (namespace, key, record, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, namespace, key, text, time.Now().UTC()); err != nil {
		return fmt.Errorf("writing record %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Get(ctx context.Context, namespace, key string) (string, error) {
	var text string
	err := s.db.GetContext(ctx, &text, `SELECT record FROM records WHERE namespace = ? AND key = ?`, namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s/%s: %w", namespace, key, eventlog.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading record %s/%s: %w", namespace, key, err)
	}
	return text, nil
}

func (s *RecordStore) Scan(ctx context.Context, namespace string) ([]eventlog.Record, error) {
	var rows []struct {
		Key    string `db:"key"`
		Record string `db:"record"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT key, record FROM records WHERE namespace = ? ORDER BY key ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", namespace, err)
	}

	out := make([]eventlog.Record, len(rows))
	for i, r := range rows {
		out[i] = eventlog.Record{Key: r.Key, Text: r.Record}
	}
	return out, nil
}

func (s *RecordStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return fmt.Errorf("deleting record %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *RecordStore) Clear(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("clearing %s: %w", namespace, err)
	}
	return nil
}
