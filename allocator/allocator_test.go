package allocator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/subaru-pfs/seqno/allocator"
	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	"github.com/subaru-pfs/seqno/internal/telemetry/telemetrytest"
	"github.com/subaru-pfs/seqno/source"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
)

func TestAllocator(t *testing.T) {
	t.Parallel()

	t.Run("it uses the first source when it is available", func(t *testing.T) {
		t.Parallel()

		primary := &stubSource{name: "<primary>", ids: []visit.ID{4711}}
		fallback := &stubSource{name: "<fallback>", ids: []visit.ID{1}}

		a := New([]source.Source{primary, fallback})

		got, err := a.Allocate(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		want := Allocation{Visit: 4711, Source: "<primary>"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}

		if fallback.calls != 0 {
			t.Fatalf("unexpected calls to fallback source: got %d, want 0", fallback.calls)
		}
	})

	t.Run("it falls back to the next source when the first one fails", func(t *testing.T) {
		t.Parallel()

		logs := &telemetrytest.LoggerProvider{}

		primary := &stubSource{name: "<primary>", err: errors.New("<timeout>")}
		fallback := source.NewCounter(
			"<counter>",
			counter.NewKeyspaceCounter(&memorykv.BinaryStore{}),
		)

		a := New(
			[]source.Source{primary, fallback},
			WithTelemetry(nil, nil, logs),
		)

		for want := visit.ID(1); want <= 3; want++ {
			got, err := a.Allocate(t.Context(), "2025-01-01")
			if err != nil {
				t.Fatal(err)
			}

			if diff := cmp.Diff(Allocation{Visit: want, Source: "<counter>"}, got); diff != "" {
				t.Fatal(diff)
			}
		}

		if n := logs.Count(log.SeverityWarn); n != 3 {
			t.Fatalf("unexpected number of warnings: got %d, want 3", n)
		}

		if n := logs.Count(log.SeverityError); n != 0 {
			t.Fatalf("unexpected number of errors: got %d, want 0", n)
		}
	})

	t.Run("it bounds each source by the timeout", func(t *testing.T) {
		t.Parallel()

		slow := &stubSource{name: "<slow>", block: true}
		fallback := &stubSource{name: "<fallback>", ids: []visit.ID{7}}

		a := New(
			[]source.Source{slow, fallback},
			WithTimeout(20*time.Millisecond),
		)

		start := time.Now()
		got, err := a.Allocate(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if got.Visit != 7 {
			t.Fatalf("unexpected visit ID: got %s, want %s", got.Visit, visit.ID(7))
		}

		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("timeout was not enforced: took %s", elapsed)
		}
	})

	t.Run("it treats an out-of-range identifier as a failure", func(t *testing.T) {
		t.Parallel()

		bad := &stubSource{name: "<bad>", ids: []visit.ID{visit.MaxID + 1}}
		fallback := &stubSource{name: "<fallback>", ids: []visit.ID{9}}

		got, err := New([]source.Source{bad, fallback}).Allocate(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if got.Source != "<fallback>" {
			t.Fatalf("unexpected source: got %q, want %q", got.Source, "<fallback>")
		}
	})

	t.Run("it returns an AllocationExhaustedError when every source fails", func(t *testing.T) {
		t.Parallel()

		logs := &telemetrytest.LoggerProvider{}

		cause1 := errors.New("<remote down>")
		cause2 := errors.New("<disk full>")

		a := New(
			[]source.Source{
				&stubSource{name: "<primary>", err: cause1},
				&stubSource{name: "<fallback>", err: cause2},
			},
			WithTelemetry(nil, nil, logs),
		)

		_, err := a.Allocate(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrAllocationExhausted) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrAllocationExhausted, err)
		}

		var exhausted visit.AllocationExhaustedError
		if !errors.As(err, &exhausted) {
			t.Fatalf("expected an AllocationExhaustedError, got %T", err)
		}

		if exhausted.Epoch != "2025-01-01" {
			t.Fatalf("unexpected epoch: got %q, want %q", exhausted.Epoch, "2025-01-01")
		}

		if len(exhausted.Causes) != 2 {
			t.Fatalf("unexpected number of causes: got %d, want 2", len(exhausted.Causes))
		}

		for _, cause := range []error{cause1, cause2} {
			if !errors.Is(err, cause) {
				t.Fatalf("expected error to wrap %v", cause)
			}
		}

		if n := logs.Count(log.SeverityError); n != 1 {
			t.Fatalf("unexpected number of errors: got %d, want 1", n)
		}
	})

	t.Run("it fails when there are no sources", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil).Allocate(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrAllocationExhausted) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrAllocationExhausted, err)
		}
	})
}

// stubSource is a [source.Source] that returns canned results.
type stubSource struct {
	name  string
	ids   []visit.ID
	err   error
	block bool

	calls int
}

func (s *stubSource) Name() string {
	return s.name
}

func (s *stubSource) TryNext(ctx context.Context, _ visit.Epoch) (visit.ID, error) {
	s.calls++

	if s.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	if s.err != nil {
		return 0, s.err
	}

	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}
