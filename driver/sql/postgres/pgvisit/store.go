// Package pgvisit stores visit records in the pfs_visit table of a PostgreSQL
// database.
package pgvisit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/subaru-pfs/seqno/driver/sql/postgres/internal/pgerror"
	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
)

// RecordStore is an implementation of [registrar.RecordStore] that inserts
// rows into the pfs_visit table.
//
// The schema must be created with [CreateSchema] before use.
type RecordStore struct {
	DB *sql.DB
}

var _ registrar.RecordStore = (*RecordStore)(nil)

// Insert inserts a row describing rec.
//
// It returns a [registrar.DuplicateError] if a row for the same visit already
// exists.
func (s *RecordStore) Insert(ctx context.Context, rec visit.Record) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO pfs_visit (
			pfs_visit_id,
			caller,
			pfs_design_id,
			issued_at
		) VALUES (
			$1, $2, $3, $4
		)`,
		int64(rec.Visit),
		nullCaller(rec.Caller),
		nullDesignID(rec.DesignID),
		rec.IssuedAt,
	)

	if pgerror.Is(err, pgerror.CodeUniqueViolation) {
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
			issuedAt time.Time
		)

		if err := rows.Scan(&id, &caller, &designID, &issuedAt); err != nil {
			return nil, fmt.Errorf("cannot scan pfs_visit row: %w", err)
		}

		v, err := visit.ParseID(id)
		if err != nil {
			return nil, err
		}

		rec := visit.Record{
			Visit:    v,
			Caller:   caller.String,
			DesignID: visit.UnresolvedDesignID,
			IssuedAt: issuedAt.UTC(),
		}
		if designID.Valid {
			rec.DesignID = visit.DesignID(designID.Int64)
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func nullCaller(c string) sql.NullString {
	return sql.NullString{String: c, Valid: c != ""}
}

func nullDesignID(d visit.DesignID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(d), Valid: d.IsResolved()}
}
