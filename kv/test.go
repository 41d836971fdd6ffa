package kv

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/subaru-pfs/seqno/internal/testx"
	"github.com/subaru-pfs/seqno/marshaler"
	"golang.org/x/sync/errgroup"
)

// RunTests runs tests that confirm a [BinaryStore] implementation behaves
// correctly.
func RunTests(
	t *testing.T,
	store BinaryStore,
) {
	setup := func(t *testing.T) BinaryKeyspace {
		name := testx.SequentialName("keyspace")

		ks, err := store.Open(t.Context(), name)
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() {
			if err := ks.Close(); err != nil {
				t.Error(err)
			}
		})

		if ks.Name() != name {
			t.Fatalf("unexpected keyspace name: got %q, want %q", ks.Name(), name)
		}

		return ks
	}

	set := func(t *testing.T, ks BinaryKeyspace, k, v string, r Revision) {
		t.Helper()
		if err := ks.Set(t.Context(), []byte(k), []byte(v), r); err != nil {
			t.Fatal(err)
		}
	}

	expectValue := func(t *testing.T, ks BinaryKeyspace, k, v string, r Revision) {
		t.Helper()

		actual, rev, err := ks.Get(t.Context(), []byte(k))
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal([]byte(v), actual) {
			t.Fatalf("unexpected value: got %q, want %q", string(actual), v)
		}

		if rev != r {
			t.Fatalf("unexpected revision: got %d, want %d", rev, r)
		}
	}

	expectConflict := func(t *testing.T, err error) {
		t.Helper()

		if err == nil {
			t.Fatal("expected a conflict error")
		}

		if !IsConflict(err) {
			t.Fatalf("expected a conflict error, got %v", err)
		}
	}

	t.Run("Store", func(t *testing.T) {
		t.Parallel()

		t.Run("Open", func(t *testing.T) {
			t.Parallel()

			t.Run("allows keyspaces to be opened multiple times", func(t *testing.T) {
				t.Parallel()

				name := testx.SequentialName("keyspace")

				ks1, err := store.Open(t.Context(), name)
				if err != nil {
					t.Fatal(err)
				}
				defer ks1.Close()

				ks2, err := store.Open(t.Context(), name)
				if err != nil {
					t.Fatal(err)
				}
				defer ks2.Close()

				set(t, ks1, "<key>", "<value>", 0)
				expectValue(t, ks2, "<key>", "<value>", 1)
			})

			t.Run("keyspaces with different names are isolated", func(t *testing.T) {
				t.Parallel()

				ks1 := setup(t)
				ks2 := setup(t)

				set(t, ks1, "<key>", "<value>", 0)
				expectValue(t, ks2, "<key>", "", 0)
			})
		})
	})

	t.Run("Keyspace", func(t *testing.T) {
		t.Parallel()

		t.Run("Get", func(t *testing.T) {
			t.Parallel()

			t.Run("it returns an empty value and zero revision if the key doesn't exist", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				expectValue(t, ks, "<key>", "", 0)
			})

			t.Run("it returns an empty value and zero revision if the key has been deleted", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				set(t, ks, "<key>", "<value>", 0)
				set(t, ks, "<key>", "", 1)

				expectValue(t, ks, "<key>", "", 0)
			})

			t.Run("it returns the value and revision if the key exists", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				for i := range 5 {
					set(t, ks, fmt.Sprintf("<key-%d>", i), fmt.Sprintf("<value-%d>", i), 0)
				}

				for i := range 5 {
					expectValue(t, ks, fmt.Sprintf("<key-%d>", i), fmt.Sprintf("<value-%d>", i), 1)
				}
			})

			t.Run("it does not return its internal byte slice", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<value>", 0)

				v, _, err := ks.Get(t.Context(), []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}

				v[0] = 'X'

				expectValue(t, ks, "<key>", "<value>", 1)
			})
		})

		t.Run("Has", func(t *testing.T) {
			t.Parallel()

			t.Run("it returns false if the key doesn't exist", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				ok, err := ks.Has(t.Context(), []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("expected key to be absent")
				}
			})

			t.Run("it returns true if the key exists", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<value>", 0)

				ok, err := ks.Has(t.Context(), []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected key to be present")
				}
			})

			t.Run("it returns false if the key has been deleted", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<value>", 0)
				set(t, ks, "<key>", "", 1)

				ok, err := ks.Has(t.Context(), []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("expected key to be absent")
				}
			})
		})

		t.Run("Set", func(t *testing.T) {
			t.Parallel()

			t.Run("it increments the revision on each write", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				for r := range Revision(5) {
					set(t, ks, "<key>", fmt.Sprintf("<value-%d>", r), r)
					expectValue(t, ks, "<key>", fmt.Sprintf("<value-%d>", r), r+1)
				}
			})

			t.Run("it returns a conflict error if the key already exists and the revision is zero", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<original>", 0)

				err := ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 0)
				expectConflict(t, err)
				expectValue(t, ks, "<key>", "<original>", 1)
			})

			t.Run("it returns a conflict error if the revision is stale", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<value-1>", 0)
				set(t, ks, "<key>", "<value-2>", 1)

				err := ks.Set(t.Context(), []byte("<key>"), []byte("<value-3>"), 1)
				expectConflict(t, err)
				expectValue(t, ks, "<key>", "<value-2>", 2)
			})

			t.Run("it returns a conflict error if the key does not exist and the revision is non-zero", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				err := ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 1)
				expectConflict(t, err)
				expectValue(t, ks, "<key>", "", 0)
			})

			t.Run("it returns a conflict error when deleting with a stale revision", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<value-1>", 0)
				set(t, ks, "<key>", "<value-2>", 1)

				err := ks.Set(t.Context(), []byte("<key>"), nil, 1)
				expectConflict(t, err)
				expectValue(t, ks, "<key>", "<value-2>", 2)
			})

			t.Run("it allows a non-existent key to be deleted with a zero revision", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "", 0)
				expectValue(t, ks, "<key>", "", 0)
			})

			t.Run("it does not keep a reference to the key or value slices", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				k := []byte("<key>")
				v := []byte("<value>")

				if err := ks.Set(t.Context(), k, v, 0); err != nil {
					t.Fatal(err)
				}

				k[0] = 'X'
				v[0] = 'X'

				expectValue(t, ks, "<key>", "<value>", 1)
			})

			t.Run("it allows exactly one of many concurrent writers with the same revision to succeed", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)
				set(t, ks, "<key>", "<initial>", 0)

				const writers = 8
				results := make(chan error, writers)

				for i := range writers {
					go func() {
						results <- ks.Set(t.Context(), []byte("<key>"), fmt.Appendf(nil, "<value-%d>", i), 1)
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
					t.Fatalf("unexpected number of successful writes: got %d, want 1", succeeded)
				}
			})

			t.Run("it does not lose updates made by concurrent read-modify-write loops", func(t *testing.T) {
				t.Parallel()

				name := testx.SequentialName("keyspace")

				const (
					workers    = 4
					increments = 10
				)

				g, ctx := errgroup.WithContext(t.Context())

				for range workers {
					g.Go(func() error {
						// Each worker uses its own handle, as a separate
						// process would.
						ks, err := NewMarshalingStore(store, marshaler.String, marshaler.Uint64).Open(ctx, name)
						if err != nil {
							return err
						}
						defer ks.Close()

						for range increments {
							for {
								v, r, err := ks.Get(ctx, "<counter>")
								if err != nil {
									return err
								}

								err = ks.Set(ctx, "<counter>", v+1, r)
								if err == nil {
									break
								}
								if !IsConflict(err) {
									return err
								}
							}
						}

						return nil
					})
				}

				if err := g.Wait(); err != nil {
					t.Fatal(err)
				}

				ks, err := NewMarshalingStore(store, marshaler.String, marshaler.Uint64).Open(t.Context(), name)
				if err != nil {
					t.Fatal(err)
				}
				defer ks.Close()

				v, r, err := ks.Get(t.Context(), "<counter>")
				if err != nil {
					t.Fatal(err)
				}

				if v != workers*increments {
					t.Fatalf("unexpected counter value: got %d, want %d", v, workers*increments)
				}

				if r != workers*increments {
					t.Fatalf("unexpected revision: got %d, want %d", r, workers*increments)
				}
			})
		})

		t.Run("Range", func(t *testing.T) {
			t.Parallel()

			t.Run("calls the function for each key in the keyspace", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				expect := map[string]string{}
				for i := range 3 {
					k := fmt.Sprintf("<key-%d>", i)
					v := fmt.Sprintf("<value-%d>", i)
					set(t, ks, k, v, 0)
					expect[k] = v
				}
				set(t, ks, "<key-0>", "<value-0>", 1)

				actual := map[string]string{}
				revisions := map[string]Revision{}

				if err := ks.Range(
					t.Context(),
					func(_ context.Context, k, v []byte, r Revision) (bool, error) {
						actual[string(k)] = string(v)
						revisions[string(k)] = r
						return true, nil
					},
				); err != nil {
					t.Fatal(err)
				}

				if len(actual) != len(expect) {
					t.Fatalf("unexpected number of pairs: got %d, want %d", len(actual), len(expect))
				}

				for k, v := range expect {
					if actual[k] != v {
						t.Fatalf("unexpected value for %q: got %q, want %q", k, actual[k], v)
					}
				}

				if revisions["<key-0>"] != 2 {
					t.Fatalf("unexpected revision: got %d, want 2", revisions["<key-0>"])
				}
			})

			t.Run("it stops iterating if the function returns false", func(t *testing.T) {
				t.Parallel()

				ks := setup(t)

				for i := range 3 {
					set(t, ks, fmt.Sprintf("<key-%d>", i), "<value>", 0)
				}

				called := 0
				if err := ks.Range(
					t.Context(),
					func(context.Context, []byte, []byte, Revision) (bool, error) {
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
		})
	})
}
