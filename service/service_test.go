package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/subaru-pfs/seqno/allocator"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/memory/memoryjournal"
	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	"github.com/subaru-pfs/seqno/internal/telemetry/telemetrytest"
	"github.com/subaru-pfs/seqno/metadata"
	"github.com/subaru-pfs/seqno/registrar"
	. "github.com/subaru-pfs/seqno/service"
	"github.com/subaru-pfs/seqno/source"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
)

func TestService_AllocateVisit(t *testing.T) {
	t.Parallel()

	hst := time.FixedZone("HST", -10*60*60)

	// 22:30 local time on the evening of 2025-01-01.
	evening := time.Date(2025, 1, 1, 22, 30, 0, 0, hst)

	type fixture struct {
		Service  *Service
		Clock    clockwork.FakeClock
		Logs     *telemetrytest.LoggerProvider
		Counter  *counter.KeyspaceCounter
		Remote   *remoteStub
		Models   *memorykv.BinaryStore
		Journal  *registrar.JournalStore
		Failures *failingStore
	}

	type config struct {
		Remote      bool
		CounterDown bool
		Base        visit.ID
		FailRecords bool
	}

	setup := func(t *testing.T, c config) *fixture {
		f := &fixture{
			Clock:    clockwork.NewFakeClockAt(evening),
			Logs:     &telemetrytest.LoggerProvider{},
			Remote:   &remoteStub{},
			Models:   &memorykv.BinaryStore{},
			Journal:  registrar.NewJournalStore(&memoryjournal.BinaryStore{}),
			Failures: &failingStore{},
		}

		base := c.Base
		if base == 0 {
			base = counter.DefaultBase
		}
		f.Counter = counter.NewKeyspaceCounter(&memorykv.BinaryStore{}, counter.WithBase(base))

		var sources []source.Source
		if c.Remote {
			sources = append(sources, source.NewRemote(f.Remote, source.WithRemoteName("gen2")))
		}

		var cnt counter.Counter = f.Counter
		if c.CounterDown {
			cnt = downCounter{}
		}
		sources = append(sources, source.NewCounter("counter", cnt))

		var store registrar.RecordStore = f.Journal
		if c.FailRecords {
			store = f.Failures
		}

		f.Service = New(
			allocator.New(sources, allocator.WithTelemetry(nil, nil, f.Logs)),
			metadata.NewResolver(
				metadata.NewKeyspaceProviders(f.Models, metadata.DefaultModels...),
				metadata.WithTelemetry(nil, nil, f.Logs),
			),
			registrar.New(store, registrar.WithTelemetry(nil, nil, f.Logs)),
			WithClock(f.Clock),
			WithTelemetry(nil, nil, f.Logs),
		)

		return f
	}

	publish := func(t *testing.T, f *fixture, model string, d visit.DesignID) {
		t.Helper()

		if err := metadata.NewKeyspaceProvider(f.Models, model).Publish(t.Context(), d); err != nil {
			t.Fatal(err)
		}
	}

	allocate := func(t *testing.T, f *fixture, req Request) visit.ID {
		t.Helper()

		res, err := f.Service.AllocateVisit(t.Context(), req)
		if err != nil {
			t.Fatal(err)
		}

		return res.Visit
	}

	records := func(t *testing.T, f *fixture) []visit.Record {
		t.Helper()

		recs, err := f.Journal.Records(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		return recs
	}

	peek := func(t *testing.T, f *fixture, e visit.Epoch) visit.ID {
		t.Helper()

		id, err := f.Counter.Peek(t.Context(), e)
		if err != nil {
			t.Fatal(err)
		}

		return id
	}

	designID := func(d visit.DesignID) *visit.DesignID {
		return &d
	}

	t.Run("it uses the primary source and does not touch the counter", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{Remote: true})
		f.Remote.next = 4711

		got := allocate(t, f, Request{Caller: "<caller>", DesignID: designID(12345)})
		if got != 4711 {
			t.Fatalf("unexpected visit ID: got %s, want %s", got, visit.ID(4711))
		}

		if id := peek(t, f, visit.DefaultEpoch); id != 1 {
			t.Fatalf("counter was advanced to %s", id)
		}

		want := []visit.Record{
			{Visit: 4711, Caller: "<caller>", DesignID: 12345, IssuedAt: evening},
		}

		if diff := cmp.Diff(want, records(t, f)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("it falls back to the counter when the primary source is unavailable", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{Remote: true})
		f.Remote.err = errors.New("<connection refused>")
		publish(t, f, "iic", 777)

		for want := visit.ID(1); want <= 2; want++ {
			if got := allocate(t, f, Request{}); got != want {
				t.Fatalf("unexpected visit ID: got %s, want %s", got, want)
			}
		}

		want := []visit.Record{
			{Visit: 1, DesignID: 777, IssuedAt: evening},
			{Visit: 2, DesignID: 777, IssuedAt: evening},
		}

		if diff := cmp.Diff(want, records(t, f)); diff != "" {
			t.Fatal(diff)
		}

		if n := f.Logs.Count(log.SeverityWarn); n != 2 {
			t.Fatalf("unexpected number of warnings: got %d, want 2", n)
		}
	})

	t.Run("it fails without writing a record when every source fails", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{Remote: true, CounterDown: true})
		f.Remote.err = errors.New("<connection refused>")

		_, err := f.Service.AllocateVisit(t.Context(), Request{Caller: "<caller>"})
		if !errors.Is(err, visit.ErrAllocationExhausted) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrAllocationExhausted, err)
		}

		if recs := records(t, f); len(recs) != 0 {
			t.Fatalf("unexpected records: %v", recs)
		}
	})

	t.Run("it returns the identifier when the record can not be written", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{FailRecords: true})

		for want := visit.ID(1); want <= 2; want++ {
			if got := allocate(t, f, Request{DesignID: designID(1)}); got != want {
				t.Fatalf("unexpected visit ID: got %s, want %s", got, want)
			}
		}

		if n := f.Logs.Count(log.SeverityWarn); n != 2 {
			t.Fatalf("unexpected number of warnings: got %d, want 2", n)
		}

		if n := f.Logs.Count(log.SeverityError); n != 0 {
			t.Fatalf("unexpected number of errors: got %d, want 0", n)
		}

		if recs := records(t, f); len(recs) != 0 {
			t.Fatalf("unexpected records: %v", recs)
		}

		if n := f.Failures.calls; n != 2 {
			t.Fatalf("unexpected number of insert attempts: got %d, want 2", n)
		}
	})

	t.Run("it records an explicit design ID without consulting the models", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{})
		publish(t, f, "iic", 111)

		allocate(t, f, Request{DesignID: designID(999)})

		if got := records(t, f)[0].DesignID; got != 999 {
			t.Fatalf("unexpected design ID: got %d, want 999", got)
		}
	})

	t.Run("it prefers the first model that holds a design ID", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{})
		publish(t, f, "iic", 111)
		publish(t, f, "fps", 222)

		allocate(t, f, Request{})

		publish(t, f, "iic", visit.UnresolvedDesignID)

		allocate(t, f, Request{})

		recs := records(t, f)
		if recs[0].DesignID != 111 || recs[1].DesignID != 222 {
			t.Fatalf("unexpected design IDs: got %d and %d, want 111 and 222", recs[0].DesignID, recs[1].DesignID)
		}
	})

	t.Run("it records the sentinel when no model holds a design ID", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{})

		if got := allocate(t, f, Request{}); got != 1 {
			t.Fatalf("unexpected visit ID: got %s, want %s", got, visit.ID(1))
		}

		if got := records(t, f)[0].DesignID; got != visit.UnresolvedDesignID {
			t.Fatalf("unexpected design ID: got %d, want %d", got, visit.UnresolvedDesignID)
		}

		if n := f.Logs.Count(log.SeverityWarn); n != 1 {
			t.Fatalf("unexpected number of warnings: got %d, want 1", n)
		}
	})

	t.Run("it keeps issuing increasing identifiers across observing nights", func(t *testing.T) {
		t.Parallel()

		f := setup(t, config{Base: 100})

		for want := visit.ID(100); want <= 102; want++ {
			if got := allocate(t, f, Request{DesignID: designID(1)}); got != want {
				t.Fatalf("unexpected visit ID: got %s, want %s", got, want)
			}

			f.Clock.Advance(24 * time.Hour)
		}

		want := []visit.Record{
			{Visit: 100, DesignID: 1, IssuedAt: evening},
			{Visit: 101, DesignID: 1, IssuedAt: evening.Add(24 * time.Hour)},
			{Visit: 102, DesignID: 1, IssuedAt: evening.Add(48 * time.Hour)},
		}

		if diff := cmp.Diff(want, records(t, f)); diff != "" {
			t.Fatal(diff)
		}

		if n := f.Logs.Count(log.SeverityWarn); n != 0 {
			t.Fatalf("unexpected number of warnings: got %d, want 0", n)
		}

		if id := peek(t, f, visit.DefaultEpoch); id != 103 {
			t.Fatalf("unexpected next free ID: got %s, want %s", id, visit.ID(103))
		}
	})

	t.Run("it counts under the configured epoch", func(t *testing.T) {
		t.Parallel()

		cnt := counter.NewKeyspaceCounter(&memorykv.BinaryStore{})

		svc := New(
			allocator.New([]source.Source{source.NewCounter("counter", cnt)}),
			metadata.NewResolver(nil),
			registrar.New(registrar.NewJournalStore(&memoryjournal.BinaryStore{})),
			WithEpoch("engineering"),
		)

		if e := svc.Epoch(); e != "engineering" {
			t.Fatalf("unexpected epoch: got %q, want %q", e, "engineering")
		}

		if _, err := svc.AllocateVisit(t.Context(), Request{DesignID: designID(1)}); err != nil {
			t.Fatal(err)
		}

		if id, err := cnt.Peek(t.Context(), "engineering"); err != nil {
			t.Fatal(err)
		} else if id != 2 {
			t.Fatalf("unexpected next free ID: got %s, want %s", id, visit.ID(2))
		}

		if id, err := cnt.Peek(t.Context(), visit.DefaultEpoch); err != nil {
			t.Fatal(err)
		} else if id != 1 {
			t.Fatalf("default epoch was advanced to %s", id)
		}
	})

	t.Run("it writes the record even if the request context is canceled after allocation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		journal := registrar.NewJournalStore(&memoryjournal.BinaryStore{})

		svc := New(
			allocatorFunc(func(context.Context, visit.Epoch) (allocator.Allocation, error) {
				cancel()
				return allocator.Allocation{Visit: 5, Source: "<stub>"}, nil
			}),
			metadata.NewResolver(nil),
			registrar.New(journal),
			WithClock(clockwork.NewFakeClockAt(evening)),
		)

		if _, err := svc.AllocateVisit(ctx, Request{DesignID: designID(1)}); err != nil {
			t.Fatal(err)
		}

		recs, err := journal.Records(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		if len(recs) != 1 || recs[0].Visit != 5 {
			t.Fatalf("unexpected records: %v", recs)
		}
	})
}

// remoteStub is a [source.Fetcher] that returns canned results.
type remoteStub struct {
	next int64
	err  error
}

func (r *remoteStub) FetchNext(context.Context) (int64, error) {
	return r.next, r.err
}

type allocatorFunc func(context.Context, visit.Epoch) (allocator.Allocation, error)

func (fn allocatorFunc) Allocate(ctx context.Context, e visit.Epoch) (allocator.Allocation, error) {
	return fn(ctx, e)
}

type downCounter struct{}

func (downCounter) Next(context.Context, visit.Epoch) (visit.ID, error) {
	return 0, errors.New("<disk full>")
}

type failingStore struct {
	calls int
}

func (s *failingStore) Insert(context.Context, visit.Record) error {
	s.calls++
	return errors.New("<database down>")
}
