package counter

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/subaru-pfs/seqno/internal/testx"
	"github.com/subaru-pfs/seqno/visit"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

// RunTests runs tests that confirm a [Counter] implementation behaves
// correctly.
//
// newCounter must return a counter that issues base for a fresh epoch. Every
// counter it returns must share storage with the others, the way separate
// processes share a database or file system.
func RunTests(
	t *testing.T,
	newCounter func(t *testing.T, base visit.ID) Counter,
) {
	epoch := func() visit.Epoch {
		return visit.Epoch(testx.SequentialName("epoch"))
	}

	next := func(t *testing.T, c Counter, e visit.Epoch) visit.ID {
		t.Helper()

		id, err := c.Next(t.Context(), e)
		if err != nil {
			t.Fatal(err)
		}

		return id
	}

	expectNext := func(t *testing.T, c Counter, e visit.Epoch, want visit.ID) {
		t.Helper()

		if got := next(t, c, e); got != want {
			t.Fatalf("unexpected visit ID: got %s, want %s", got, want)
		}
	}

	t.Run("Next", func(t *testing.T) {
		t.Parallel()

		t.Run("it issues the base value for a fresh epoch", func(t *testing.T) {
			t.Parallel()

			for _, base := range []visit.ID{1, 500, visit.MaxID} {
				c := newCounter(t, base)
				expectNext(t, c, epoch(), base)
			}
		})

		t.Run("it issues consecutive values within an epoch", func(t *testing.T) {
			t.Parallel()

			c := newCounter(t, DefaultBase)
			e := epoch()

			for want := visit.ID(1); want <= 20; want++ {
				expectNext(t, c, e, want)
			}
		})

		t.Run("it counts each epoch independently", func(t *testing.T) {
			t.Parallel()

			c := newCounter(t, DefaultBase)
			e1, e2 := epoch(), epoch()

			expectNext(t, c, e1, 1)
			expectNext(t, c, e1, 2)
			expectNext(t, c, e2, 1)
			expectNext(t, c, e1, 3)
			expectNext(t, c, e2, 2)
		})

		t.Run("it continues from the persisted value when a new counter is used", func(t *testing.T) {
			t.Parallel()

			e := epoch()

			expectNext(t, newCounter(t, 10), e, 10)
			expectNext(t, newCounter(t, 10), e, 11)

			// The base only applies to fresh epochs.
			expectNext(t, newCounter(t, 1), e, 12)
		})

		t.Run("it refuses to issue values beyond the maximum", func(t *testing.T) {
			t.Parallel()

			c := newCounter(t, visit.MaxID)
			e := epoch()

			expectNext(t, c, e, visit.MaxID)

			for range 2 {
				id, err := c.Next(t.Context(), e)
				if err == nil {
					t.Fatalf("expected an error, got visit ID %s", id)
				}

				if !errors.Is(err, visit.ErrRangeExhausted) {
					t.Fatalf("unexpected error: got %v, want %v", err, visit.ErrRangeExhausted)
				}

				if !errors.Is(err, visit.ErrUnavailable) {
					t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
				}
			}
		})

		t.Run("it rejects an invalid epoch", func(t *testing.T) {
			t.Parallel()

			c := newCounter(t, DefaultBase)

			for _, e := range []visit.Epoch{"", "../escape", "a/b"} {
				if _, err := c.Next(t.Context(), e); err == nil {
					t.Fatalf("expected an error for epoch %q", e)
				}
			}
		})

		t.Run("it returns an error if the context is already canceled", func(t *testing.T) {
			t.Parallel()

			c := newCounter(t, DefaultBase)
			e := epoch()

			ctx, cancel := context.WithCancel(t.Context())
			cancel()

			if _, err := c.Next(ctx, e); err == nil {
				t.Fatal("expected an error")
			}

			// A failed call must not consume an identifier.
			expectNext(t, c, e, 1)
		})

		t.Run("it issues distinct contiguous values to concurrent callers", func(t *testing.T) {
			t.Parallel()

			const (
				callers = 4
				calls   = 25
			)

			e := epoch()
			g, ctx := errgroup.WithContext(t.Context())

			var (
				m   sync.Mutex
				ids []visit.ID
			)

			for range callers {
				c := newCounter(t, DefaultBase)

				g.Go(func() error {
					for range calls {
						id, err := c.Next(ctx, e)
						if err != nil {
							return err
						}

						m.Lock()
						ids = append(ids, id)
						m.Unlock()
					}
					return nil
				})
			}

			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}

			slices.Sort(ids)

			for i, id := range ids {
				if want := visit.ID(i + 1); id != want {
					t.Fatalf("unexpected visit ID at index %d: got %s, want %s (IDs must be distinct and contiguous)", i, id, want)
				}
			}

			expectNext(t, newCounter(t, DefaultBase), e, callers*calls+1)
		})
	})

	t.Run("Peek", func(t *testing.T) {
		t.Parallel()

		peeker := func(t *testing.T, base visit.ID) (Counter, Peeker) {
			c := newCounter(t, base)
			p, ok := c.(Peeker)
			if !ok {
				t.Skipf("%T does not implement Peeker", c)
			}
			return c, p
		}

		expectPeek := func(t *testing.T, p Peeker, e visit.Epoch, want visit.ID) {
			t.Helper()

			got, err := p.Peek(t.Context(), e)
			if err != nil {
				t.Fatal(err)
			}

			if got != want {
				t.Fatalf("unexpected visit ID: got %s, want %s", got, want)
			}
		}

		t.Run("it reports the next free value without issuing it", func(t *testing.T) {
			t.Parallel()

			c, p := peeker(t, 7)
			e := epoch()

			expectPeek(t, p, e, 7)
			expectPeek(t, p, e, 7)
			expectNext(t, c, e, 7)
			expectPeek(t, p, e, 8)
		})

		t.Run("it reports exhaustion", func(t *testing.T) {
			t.Parallel()

			c, p := peeker(t, visit.MaxID)
			e := epoch()

			expectNext(t, c, e, visit.MaxID)

			if _, err := p.Peek(t.Context(), e); !errors.Is(err, visit.ErrRangeExhausted) {
				t.Fatalf("unexpected error: got %v, want %v", err, visit.ErrRangeExhausted)
			}
		})
	})

	t.Run("property-based", func(t *testing.T) {
		t.Parallel()

		outer := t

		rapid.Check(t, func(t *rapid.T) {
			base := visit.ID(rapid.Uint32Range(1, 1000).Draw(t, "base"))

			var counters []Counter
			for range 3 {
				counters = append(counters, newCounter(outer, base))
			}

			epochs := []visit.Epoch{epoch(), epoch(), epoch()}
			model := map[visit.Epoch]visit.ID{}

			t.Repeat(
				map[string]func(*rapid.T){
					"Next": func(t *rapid.T) {
						c := rapid.SampledFrom(counters).Draw(t, "counter")
						e := rapid.SampledFrom(epochs).Draw(t, "epoch")

						want, ok := model[e]
						if !ok {
							want = base
						}

						got, err := c.Next(t.Context(), e)
						if err != nil {
							t.Fatal(err)
						}

						if got != want {
							t.Fatalf("unexpected visit ID for epoch %q: got %s, want %s", e, got, want)
						}

						model[e] = want + 1
					},
				},
			)
		})
	})
}
