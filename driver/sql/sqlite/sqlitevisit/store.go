// Package sqlitevisit stores visit records in a local SQLite database.
package sqlitevisit

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// DefaultBusyTimeout is the time a writer waits for another process to
// release the database before giving up.
const DefaultBusyTimeout = 5 * time.Second

// RecordStore is an implementation of [registrar.RecordStore] that inserts
// rows into a pfs_visit table held in a SQLite database file.
type RecordStore struct {
	DB *sql.DB
}

var _ registrar.RecordStore = (*RecordStore)(nil)

// Open opens (creating if necessary) the SQLite database at path and ensures
// the pfs_visit table exists.
func Open(ctx context.Context, path string) (*RecordStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("cannot create directory for %q: %w", path, err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=%s",
		path,
		url.QueryEscape(fmt.Sprintf("busy_timeout(%d)", DefaultBusyTimeout.Milliseconds())),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite database %q: %w", path, err)
	}

	// A single connection serializes writers within the process and keeps an
	// in-memory database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &RecordStore{DB: db}, nil
}

// CreateSchema creates the pfs_visit table if it does not already exist.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("cannot create pfs_visit table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *RecordStore) Close() error {
	return s.DB.Close()
}

// Insert inserts a row describing rec.
//
// It returns a [registrar.DuplicateError] if a row for the same visit already
// exists.
func (s *RecordStore) Insert(ctx context.Context, rec visit.Record) error {
	var (
		caller   any
		designID any
	)

	if rec.Caller != "" {
		caller = rec.Caller
	}

	if rec.DesignID.IsResolved() {
		designID = int64(rec.DesignID)
	}

	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO pfs_visit (
			pfs_visit_id,
			caller,
			pfs_design_id,
			issued_at
		) VALUES (
			?, ?, ?, ?
		)`,
		int64(rec.Visit),
		caller,
		designID,
		rec.IssuedAt.UTC().Format(time.RFC3339Nano),
	)

	if isPrimaryKeyViolation(err) {
		return registrar.DuplicateError{Visit: rec.Visit}
	}

	if err != nil {
		return fmt.Errorf("cannot insert pfs_visit row: %w", err)
	}

	return nil
}

// Records returns every record in the table, ordered by visit.
func (s *RecordStore) Records(ctx context.Context) ([]visit.Record, error) {
	rows, err := s.DB.QueryContext(
		ctx,
		`SELECT pfs_visit_id, caller, pfs_design_id, issued_at
		FROM pfs_visit
		ORDER BY pfs_visit_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("cannot query pfs_visit rows: %w", err)
	}
	defer rows.Close()

	var records []visit.Record

	for rows.Next() {
		var (
			id       int64
			caller   sql.NullString
			designID sql.NullInt64
			issuedAt string
		)

		if err := rows.Scan(&id, &caller, &designID, &issuedAt); err != nil {
			return nil, fmt.Errorf("cannot scan pfs_visit row: %w", err)
		}

		v, err := visit.ParseID(id)
		if err != nil {
			return nil, err
		}

		at, err := time.Parse(time.RFC3339Nano, issuedAt)
		if err != nil {
			return nil, fmt.Errorf("cannot parse issue time of visit %s: %w", v, err)
		}

		rec := visit.Record{
			Visit:    v,
			Caller:   caller.String,
			DesignID: visit.UnresolvedDesignID,
			IssuedAt: at,
		}
		if designID.Valid {
			rec.DesignID = visit.DesignID(designID.Int64)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func isPrimaryKeyViolation(err error) bool {
	var e *sqlite.Error
	return errors.As(err, &e) && e.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
