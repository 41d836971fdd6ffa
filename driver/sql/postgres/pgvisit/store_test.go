package pgvisit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/subaru-pfs/seqno/driver/sql/postgres/internal/pgtest"
	. "github.com/subaru-pfs/seqno/driver/sql/postgres/pgvisit"
	"github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
)

func TestRecordStore(t *testing.T) {
	db := pgtest.Setup(t)

	if err := CreateSchema(t.Context(), db); err != nil {
		t.Fatal(err)
	}

	store := &RecordStore{DB: db}
	issuedAt := time.Date(2025, 1, 2, 8, 30, 0, 0, time.UTC)

	want := []visit.Record{
		{Visit: 1, Caller: "iic", DesignID: 0x5a5a, IssuedAt: issuedAt},
		{Visit: 2, DesignID: visit.UnresolvedDesignID, IssuedAt: issuedAt.Add(time.Minute)},
	}

	for _, rec := range want {
		if err := store.Insert(t.Context(), rec); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("it stores the sentinel design ID and empty caller as NULL", func(t *testing.T) {
		var nulls int
		row := db.QueryRowContext(
			t.Context(),
			`SELECT COUNT(*) FROM pfs_visit
			WHERE pfs_visit_id = 2
			AND caller IS NULL
			AND pfs_design_id IS NULL`,
		)
		if err := row.Scan(&nulls); err != nil {
			t.Fatal(err)
		}

		if nulls != 1 {
			t.Fatalf("unexpected row count: got %d, want 1", nulls)
		}
	})

	t.Run("it reads back the inserted records", func(t *testing.T) {
		got, err := store.Records(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it rejects a second record of the same visit", func(t *testing.T) {
		err := store.Insert(t.Context(), visit.Record{Visit: 1, IssuedAt: issuedAt})

		var dup registrar.DuplicateError
		if !errors.As(err, &dup) {
			t.Fatalf("unexpected error: got %v, want %T", err, dup)
		}

		if dup.Visit != 1 {
			t.Fatalf("unexpected visit: got %s, want %s", dup.Visit, visit.ID(1))
		}
	})
}
