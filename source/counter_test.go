package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	. "github.com/subaru-pfs/seqno/source"
	"github.com/subaru-pfs/seqno/visit"
)

func TestCounter(t *testing.T) {
	t.Parallel()

	t.Run("it returns identifiers from the counter", func(t *testing.T) {
		t.Parallel()

		src := NewCounter("<counter>", counter.NewKeyspaceCounter(&memorykv.BinaryStore{}))

		if src.Name() != "<counter>" {
			t.Fatalf("unexpected name: got %q, want %q", src.Name(), "<counter>")
		}

		for want := visit.ID(1); want <= 3; want++ {
			id, err := src.TryNext(t.Context(), "2025-01-01")
			if err != nil {
				t.Fatal(err)
			}

			if id != want {
				t.Fatalf("unexpected visit ID: got %s, want %s", id, want)
			}
		}
	})

	t.Run("it reports counter failures as unavailability", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("<disk full>")
		src := NewCounter("<counter>", failingCounter{cause})

		_, err := src.TryNext(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if !errors.Is(err, cause) {
			t.Fatalf("expected error to wrap %v, got %v", cause, err)
		}
	})
}

type failingCounter struct {
	err error
}

func (c failingCounter) Next(context.Context, visit.Epoch) (visit.ID, error) {
	return 0, c.err
}
