// Package sqlitedb implements remote.Client on an embedded SQLite database.
//
// It serves as a self-hosted prompt database for offline mirrors and as the
// backend of integration tests. The database runs in WAL mode so readers are
// not blocked while an import is writing.
//
// Architecture:
//   - Database file: any path, e.g. .promptsync/prompts.db
//   - Schema: a single records table keyed by a generated UUID, with the
//     template name as a unique secondary key
//   - Fields: stored as a JSON object so unknown keys survive a round trip
package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/syncerr"
)

// DefaultPageSize is the number of records ListAll reads per query.
const DefaultPageSize = 100

// Options configures Open.
type Options struct {
	// PageSize bounds the rows fetched per ListAll query. Zero means DefaultPageSize.
	PageSize int
	Logger   *slog.Logger
}

// DB is a remote.Client backed by a SQLite file.
type DB struct {
	conn     *sql.DB
	path     string
	pageSize int
	logger   *slog.Logger
}

var _ remote.Client = (*DB)(nil)

// Open opens (creating if needed) the database at path and initializes the
// schema. The caller MUST call Close when done.
//
// Example:
//
//	db, err := sqlitedb.Open(".promptsync/prompts.db", sqlitedb.Options{})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, opts Options) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	db := &DB{
		conn:     conn,
		path:     path,
		pageSize: opts.PageSize,
		logger:   opts.Logger.With("backend", "sqlite"),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("failed to checkpoint WAL", "error", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the schema if it does not exist. It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	const schemaSQL = `
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE CHECK (name <> ''),
			fields TEXT NOT NULL CHECK (json_valid(fields)),
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// ListAll returns every record ordered by name, reading one page per query.
// Paging is keyset-based, so records inserted behind the cursor during
// iteration are not revisited.
func (db *DB) ListAll(ctx context.Context) iter.Seq2[remote.Record, error] {
	return func(yield func(remote.Record, error) bool) {
		after := ""
		for page := 1; ; page++ {
			records, err := db.listPage(ctx, after)
			if err != nil {
				yield(remote.Record{}, err)
				return
			}
			db.logger.Debug("read page", "page", page, "records", len(records))

			for _, rec := range records {
				if !yield(rec, nil) {
					return
				}
			}
			if len(records) < db.pageSize {
				return
			}
			after = records[len(records)-1].Name()
		}
	}
}

func (db *DB) listPage(ctx context.Context, after string) ([]remote.Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, fields FROM records
		WHERE name > ?
		ORDER BY name
		LIMIT ?
	`, after, db.pageSize)
	if err != nil {
		return nil, classify("list records", err)
	}
	defer rows.Close()

	var records []remote.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list records", err)
	}
	return records, nil
}

// FindByName returns the record with the given template name.
func (db *DB) FindByName(ctx context.Context, name string) (remote.Record, bool, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, fields FROM records WHERE name = ?`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Record{}, false, nil
	}
	if err != nil {
		return remote.Record{}, false, err
	}
	return rec, true, nil
}

// Upsert inserts or updates the record for name in a single transaction.
// The record ID is kept across updates.
func (db *DB) Upsert(ctx context.Context, name string, fields remote.Fields) (remote.Record, error) {
	fields = fields.Clone()
	if fields == nil {
		fields = remote.Fields{}
	}
	fields[remote.FieldName] = name

	data, err := json.Marshal(fields)
	if err != nil {
		return remote.Record{}, syncerr.Mismatch("", "fields are not JSON-serializable: %v", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return remote.Record{}, classify("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, name, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, uuid.NewString(), name, string(data), now, now)
	if err != nil {
		return remote.Record{}, classify("upsert record", err)
	}

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM records WHERE name = ?`, name).Scan(&id); err != nil {
		return remote.Record{}, classify("read upserted record", err)
	}
	if err := tx.Commit(); err != nil {
		return remote.Record{}, classify("commit upsert", err)
	}

	return remote.Record{ID: id, Fields: fields}, nil
}

// Count returns the number of records.
func (db *DB) Count() (int, error) {
	return db.CountContext(context.Background())
}

// CountContext returns the number of records with context support.
func (db *DB) CountContext(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&count); err != nil {
		return 0, classify("count records", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (remote.Record, error) {
	var (
		id   string
		data string
	)
	if err := s.Scan(&id, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return remote.Record{}, err
		}
		return remote.Record{}, classify("scan record", err)
	}

	var fields remote.Fields
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return remote.Record{}, syncerr.Mismatch("", "record %s: invalid fields JSON: %v", id, err)
	}
	return remote.Record{ID: id, Fields: fields}, nil
}

// classify maps a database error onto the sync error taxonomy: constraint
// violations are permanent, everything else may succeed on a later attempt.
func classify(op string, err error) error {
	if errors.Is(err, sqlite3.CONSTRAINT) {
		return &syncerr.RejectedError{Op: op, Code: "constraint", Message: err.Error()}
	}
	return &syncerr.TransportError{Op: op, Err: err}
}
