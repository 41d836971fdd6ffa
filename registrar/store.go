package registrar

import (
	"context"
	"fmt"

	"github.com/subaru-pfs/seqno/journal"
	"github.com/subaru-pfs/seqno/visit"
)

// Discard is a [RecordStore] that discards every record.
var Discard RecordStore = discard{}

type discard struct{}

func (discard) Insert(context.Context, visit.Record) error {
	return nil
}

// JournalName is the name of the journal used by a [JournalStore].
const JournalName = "pfs_visit"

// JournalStore is a [RecordStore] that appends records to a journal.
type JournalStore struct {
	store journal.Store[visit.Record]
}

// NewJournalStore returns a [JournalStore] that appends records to the
// [JournalName] journal in s.
func NewJournalStore(s journal.BinaryStore) *JournalStore {
	return &JournalStore{
		store: journal.NewMarshalingStore(s, visit.RecordMarshaler),
	}
}

// Insert appends rec to the journal.
func (s *JournalStore) Insert(ctx context.Context, rec visit.Record) error {
	j, err := s.store.Open(ctx, JournalName)
	if err != nil {
		return fmt.Errorf("cannot open %q journal: %w", JournalName, err)
	}
	defer j.Close()

	if _, err := journal.Append(ctx, j, rec); err != nil {
		return fmt.Errorf("cannot append record of visit %s: %w", rec.Visit, err)
	}

	return nil
}

// Records returns every record in the journal, in the order they were
// inserted.
func (s *JournalStore) Records(ctx context.Context) ([]visit.Record, error) {
	j, err := s.store.Open(ctx, JournalName)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q journal: %w", JournalName, err)
	}
	defer j.Close()

	var records []visit.Record

	err = j.Range(
		ctx,
		0,
		func(_ context.Context, _ journal.Position, rec visit.Record) (bool, error) {
			records = append(records, rec)
			return true, nil
		},
	)

	return records, journal.IgnoreNotFound(err)
}

// DuplicateError is returned by a [RecordStore] when a record of the same
// visit has already been inserted.
type DuplicateError struct {
	Visit visit.ID
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("a record of visit %s already exists", e.Visit)
}
