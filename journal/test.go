package journal

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/subaru-pfs/seqno/internal/testx"
)

// RunTests runs tests that confirm a journal implementation behaves correctly.
func RunTests(
	t *testing.T,
	store BinaryStore,
) {
	setup := func(t *testing.T) BinaryJournal {
		j, err := store.Open(t.Context(), testx.SequentialName("journal"))
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() {
			if err := j.Close(); err != nil {
				t.Error(err)
			}
		})

		return j
	}

	appendRecords := func(t *testing.T, j BinaryJournal, n int) [][]byte {
		t.Helper()

		var records [][]byte
		for pos := range Position(n) {
			rec := fmt.Appendf(nil, "<record-%d>", pos)
			if err := j.Append(t.Context(), pos, rec); err != nil {
				t.Fatal(err)
			}
			records = append(records, rec)
		}

		return records
	}

	t.Run("Store", func(t *testing.T) {
		t.Parallel()

		t.Run("Open", func(t *testing.T) {
			t.Parallel()

			t.Run("allows a journal to be opened multiple times", func(t *testing.T) {
				t.Parallel()

				name := testx.SequentialName("journal")

				j1, err := store.Open(t.Context(), name)
				if err != nil {
					t.Fatal(err)
				}
				defer j1.Close()

				j2, err := store.Open(t.Context(), name)
				if err != nil {
					t.Fatal(err)
				}
				defer j2.Close()

				want := []byte("<record>")
				if err := j1.Append(t.Context(), 0, want); err != nil {
					t.Fatal(err)
				}

				got, err := j2.Get(t.Context(), 0)
				if err != nil {
					t.Fatal(err)
				}

				if !bytes.Equal(got, want) {
					t.Fatalf("unexpected record: got %q, want %q", string(got), string(want))
				}
			})
		})
	})

	t.Run("Journal", func(t *testing.T) {
		t.Parallel()

		t.Run("Bounds", func(t *testing.T) {
			t.Parallel()

			cases := []struct {
				Name  string
				Count int
				Want  Interval
			}{
				{"empty", 0, Interval{}},
				{"with records", 3, Interval{Begin: 0, End: 3}},
			}

			for _, c := range cases {
				t.Run(c.Name, func(t *testing.T) {
					t.Parallel()

					j := setup(t)
					appendRecords(t, j, c.Count)

					got, err := j.Bounds(t.Context())
					if err != nil {
						t.Fatal(err)
					}

					if diff := cmp.Diff(c.Want, got); diff != "" {
						t.Fatal(diff)
					}
				})
			}
		})

		t.Run("Get", func(t *testing.T) {
			t.Parallel()

			t.Run("it returns a RecordNotFoundError if there is no record at the given position", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				appendRecords(t, j, 2)

				_, err := j.Get(t.Context(), 2)
				if !IsNotFound(err) {
					t.Fatalf("unexpected error: got %v, want RecordNotFoundError", err)
				}
			})

			t.Run("it returns the record if it exists", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				want := appendRecords(t, j, 3)

				for pos, rec := range want {
					got, err := j.Get(t.Context(), Position(pos))
					if err != nil {
						t.Fatal(err)
					}

					if !bytes.Equal(got, rec) {
						t.Fatalf("unexpected record at position %d: got %q, want %q", pos, string(got), string(rec))
					}
				}
			})

			t.Run("it does not return its internal byte slice", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				appendRecords(t, j, 1)

				rec, err := j.Get(t.Context(), 0)
				if err != nil {
					t.Fatal(err)
				}

				rec[0] = 'X'

				got, err := j.Get(t.Context(), 0)
				if err != nil {
					t.Fatal(err)
				}

				if want := "<record-0>"; string(got) != want {
					t.Fatalf("unexpected record: got %q, want %q", string(got), want)
				}
			})
		})

		t.Run("Range", func(t *testing.T) {
			t.Parallel()

			t.Run("calls the function for each record in the journal", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				want := appendRecords(t, j, 5)

				var got [][]byte
				if err := j.Range(
					t.Context(),
					1,
					func(_ context.Context, pos Position, rec []byte) (bool, error) {
						if expect := Position(len(got) + 1); pos != expect {
							t.Fatalf("unexpected position: got %d, want %d", pos, expect)
						}
						got = append(got, rec)
						return true, nil
					},
				); err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(want[1:], got); diff != "" {
					t.Fatal(diff)
				}
			})

			t.Run("it stops iterating if the function returns false", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				appendRecords(t, j, 3)

				called := 0
				if err := j.Range(
					t.Context(),
					0,
					func(context.Context, Position, []byte) (bool, error) {
						called++
						return false, nil
					},
				); err != nil {
					t.Fatal(err)
				}

				if called != 1 {
					t.Fatalf("unexpected number of calls: got %d, want 1", called)
				}
			})

			t.Run("it returns a RecordNotFoundError if the journal is empty", func(t *testing.T) {
				t.Parallel()

				j := setup(t)

				err := j.Range(
					t.Context(),
					0,
					func(context.Context, Position, []byte) (bool, error) {
						t.Fatal("unexpected call")
						return false, nil
					},
				)
				if !IsNotFound(err) {
					t.Fatalf("unexpected error: got %v, want RecordNotFoundError", err)
				}
			})
		})

		t.Run("Append", func(t *testing.T) {
			t.Parallel()

			t.Run("it returns a ConflictError if there is already a record at the given position", func(t *testing.T) {
				t.Parallel()

				j := setup(t)
				appendRecords(t, j, 2)

				err := j.Append(t.Context(), 1, []byte("<conflicting>"))
				if !IsConflict(err) {
					t.Fatalf("unexpected error: got %v, want ConflictError", err)
				}

				got, err := j.Get(t.Context(), 1)
				if err != nil {
					t.Fatal(err)
				}

				if want := "<record-1>"; string(got) != want {
					t.Fatalf("unexpected record: got %q, want %q", string(got), want)
				}
			})

			t.Run("it does not keep a reference to the record slice", func(t *testing.T) {
				t.Parallel()

				j := setup(t)

				rec := []byte("<record>")
				if err := j.Append(t.Context(), 0, rec); err != nil {
					t.Fatal(err)
				}

				rec[0] = 'X'

				got, err := j.Get(t.Context(), 0)
				if err != nil {
					t.Fatal(err)
				}

				if want := "<record>"; string(got) != want {
					t.Fatalf("unexpected record: got %q, want %q", string(got), want)
				}
			})

			t.Run("it allows exactly one of many concurrent appends at the same position", func(t *testing.T) {
				t.Parallel()

				j := setup(t)

				const writers = 8
				results := make(chan error, writers)

				for i := range writers {
					go func() {
						results <- j.Append(t.Context(), 0, fmt.Appendf(nil, "<record-%d>", i))
					}()
				}

				succeeded := 0
				for range writers {
					err := <-results
					if err == nil {
						succeeded++
					} else if !IsConflict(err) {
						t.Fatal(err)
					}
				}

				if succeeded != 1 {
					t.Fatalf("unexpected number of successful appends: got %d, want 1", succeeded)
				}
			})
		})
	})
}
