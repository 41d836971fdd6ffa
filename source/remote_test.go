package source_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/subaru-pfs/seqno/source"
	"github.com/subaru-pfs/seqno/visit"
)

func TestRemote(t *testing.T) {
	t.Parallel()

	t.Run("it returns the fetched identifier", func(t *testing.T) {
		t.Parallel()

		src := NewRemote(
			FetcherFunc(func(context.Context) (int64, error) {
				return 123, nil
			}),
		)

		id, err := src.TryNext(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 123 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(123))
		}
	})

	t.Run("it reports fetch errors as unavailability", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("<connection refused>")
		src := NewRemote(
			FetcherFunc(func(context.Context) (int64, error) {
				return 0, cause
			}),
			WithRemoteName("<gen2>"),
		)

		_, err := src.TryNext(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if !errors.Is(err, cause) {
			t.Fatalf("expected error to wrap %v, got %v", cause, err)
		}

		var u visit.UnavailableError
		if !errors.As(err, &u) || u.Dependency != "<gen2>" {
			t.Fatalf("unexpected dependency: got %q, want %q", u.Dependency, "<gen2>")
		}
	})

	t.Run("it rejects malformed responses", func(t *testing.T) {
		t.Parallel()

		for _, n := range []int64{0, -1, int64(visit.MaxID) + 1, 12345678} {
			src := NewRemote(
				FetcherFunc(func(context.Context) (int64, error) {
					return n, nil
				}),
			)

			if _, err := src.TryNext(t.Context(), "2025-01-01"); !errors.Is(err, visit.ErrUnavailable) {
				t.Fatalf("response %d: expected error to match %v, got %v", n, visit.ErrUnavailable, err)
			}
		}
	})

	t.Run("it gives up when the timeout elapses", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)

		src := NewRemote(
			// The fetcher ignores its context, as a misbehaving client
			// library might.
			FetcherFunc(func(context.Context) (int64, error) {
				<-release
				return 1, nil
			}),
			WithRemoteTimeout(20*time.Millisecond),
		)

		start := time.Now()
		_, err := src.TryNext(t.Context(), "2025-01-01")

		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected error to wrap %v, got %v", context.DeadlineExceeded, err)
		}

		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("timeout was not enforced: took %s", elapsed)
		}
	})
}
