package pgkv_test

import (
	"testing"

	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/sql/postgres/internal/pgtest"
	. "github.com/subaru-pfs/seqno/driver/sql/postgres/pgkv"
	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/visit"
)

func TestBinaryStore(t *testing.T) {
	db := pgtest.Setup(t)

	if err := CreateSchema(t.Context(), db); err != nil {
		t.Fatal(err)
	}

	// Creating the schema a second time must be harmless.
	if err := CreateSchema(t.Context(), db); err != nil {
		t.Fatal(err)
	}

	store := &BinaryStore{DB: db}

	t.Run("kv", func(t *testing.T) {
		kv.RunTests(t, store)
	})

	t.Run("counter", func(t *testing.T) {
		counter.RunTests(
			t,
			func(_ *testing.T, base visit.ID) counter.Counter {
				return counter.NewKeyspaceCounter(store, counter.WithBase(base))
			},
		)
	})
}
