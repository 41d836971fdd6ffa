package registrar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/subaru-pfs/seqno/driver/memory/memoryjournal"
	"github.com/subaru-pfs/seqno/internal/telemetry/telemetrytest"
	. "github.com/subaru-pfs/seqno/registrar"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
)

func TestRegistrar(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2025, 1, 1, 22, 30, 0, 0, time.UTC)

	t.Run("it writes the record to the store", func(t *testing.T) {
		t.Parallel()

		logs := &telemetrytest.LoggerProvider{}
		store := NewJournalStore(&memoryjournal.BinaryStore{})
		r := New(store, WithTelemetry(nil, nil, logs))

		want := []visit.Record{
			{Visit: 1, Caller: "<caller>", DesignID: 12345, IssuedAt: issuedAt},
			{Visit: 2, DesignID: visit.UnresolvedDesignID, IssuedAt: issuedAt},
		}

		for _, rec := range want {
			r.Register(t.Context(), rec)
		}

		got, err := store.Records(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}

		if n := logs.Count(log.SeverityWarn); n != 0 {
			t.Fatalf("unexpected number of warnings: got %d, want 0", n)
		}
	})

	t.Run("it logs a warning for each record that can not be written", func(t *testing.T) {
		t.Parallel()

		logs := &telemetrytest.LoggerProvider{}
		r := New(
			failingStore{errors.New("<database down>")},
			WithTelemetry(nil, nil, logs),
		)

		r.Register(t.Context(), visit.Record{Visit: 1, IssuedAt: issuedAt})
		r.Register(t.Context(), visit.Record{Visit: 2, IssuedAt: issuedAt})

		if n := logs.Count(log.SeverityWarn); n != 2 {
			t.Fatalf("unexpected number of warnings: got %d, want 2", n)
		}

		for _, e := range logs.Entries() {
			if e.Severity == log.SeverityWarn && e.Attrs["error"] == "" {
				t.Fatalf("expected warning %q to carry the error", e.Message)
			}
		}
	})

	t.Run("it bounds each write by the timeout", func(t *testing.T) {
		t.Parallel()

		logs := &telemetrytest.LoggerProvider{}
		r := New(
			blockingStore{},
			WithTimeout(20*time.Millisecond),
			WithTelemetry(nil, nil, logs),
		)

		start := time.Now()
		r.Register(t.Context(), visit.Record{Visit: 1, IssuedAt: issuedAt})

		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("timeout was not enforced: took %s", elapsed)
		}

		if n := logs.Count(log.SeverityWarn); n != 1 {
			t.Fatalf("unexpected number of warnings: got %d, want 1", n)
		}
	})
}

func TestDiscard(t *testing.T) {
	if err := Discard.Insert(t.Context(), visit.Record{Visit: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestJournalStore_emptyJournal(t *testing.T) {
	store := NewJournalStore(&memoryjournal.BinaryStore{})

	records, err := store.Records(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 0 {
		t.Fatalf("unexpected records: %v", records)
	}
}

type failingStore struct {
	err error
}

func (s failingStore) Insert(context.Context, visit.Record) error {
	return s.err
}

type blockingStore struct{}

func (blockingStore) Insert(ctx context.Context, _ visit.Record) error {
	<-ctx.Done()
	return ctx.Err()
}
