package counter_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/visit"
)

func TestKeyspaceCounter(t *testing.T) {
	store := &memorykv.BinaryStore{}

	RunTests(
		t,
		func(t *testing.T, base visit.ID) Counter {
			c := NewKeyspaceCounter(store, WithBase(base))
			t.Cleanup(func() {
				if err := c.Close(); err != nil {
					t.Error(err)
				}
			})
			return c
		},
	)

	t.Run("it stores the next free value under the epoch key", func(t *testing.T) {
		store := &memorykv.BinaryStore{}
		c := NewKeyspaceCounter(store, WithKeyspace("<counters>"))
		defer c.Close()

		if _, err := c.Next(t.Context(), "2025-01-01"); err != nil {
			t.Fatal(err)
		}

		ks, err := store.Open(t.Context(), "<counters>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		v, r, err := ks.Get(t.Context(), []byte("2025-01-01"))
		if err != nil {
			t.Fatal(err)
		}

		if r != 1 {
			t.Fatalf("unexpected revision: got %d, want 1", r)
		}

		want := []byte{0, 0, 0, 0, 0, 0, 0, 2}
		if string(v) != string(want) {
			t.Fatalf("unexpected value: got %v, want %v", v, want)
		}
	})

	t.Run("it reports the store as unavailable when it can not be read", func(t *testing.T) {
		var in kv.BinaryInterceptor
		c := NewKeyspaceCounter(kv.WithInterceptor(&memorykv.BinaryStore{}, &in))
		defer c.Close()

		cause := errors.New("<outage>")
		in.BeforeGet(func(string, []byte) error {
			return cause
		})

		_, err := c.Next(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if !errors.Is(err, cause) {
			t.Fatalf("expected error to wrap %v, got %v", cause, err)
		}
	})

	t.Run("it reports the store as unavailable when the write fails", func(t *testing.T) {
		store := &memorykv.BinaryStore{}

		var in kv.BinaryInterceptor
		c := NewKeyspaceCounter(kv.WithInterceptor(store, &in))
		defer c.Close()

		in.BeforeSet(func(string, []byte, []byte) error {
			return errors.New("<disk full>")
		})

		if _, err := c.Next(t.Context(), "2025-01-01"); !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		in.BeforeSet(nil)

		// Nothing was issued by the failed call.
		id, err := c.Next(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 1 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(1))
		}
	})

	t.Run("it retries when another writer wins the race", func(t *testing.T) {
		store := &memorykv.BinaryStore{}
		rival := NewKeyspaceCounter(store)
		defer rival.Close()

		var in kv.BinaryInterceptor
		c := NewKeyspaceCounter(kv.WithInterceptor(store, &in))
		defer c.Close()

		races := 3
		in.BeforeSet(func(string, []byte, []byte) error {
			if races > 0 {
				races--
				if _, err := rival.Next(t.Context(), "2025-01-01"); err != nil {
					t.Error(err)
				}
			}
			return nil
		})

		id, err := c.Next(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 4 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(4))
		}
	})

	t.Run("it gives up after the maximum number of attempts", func(t *testing.T) {
		store := &memorykv.BinaryStore{}
		rival := NewKeyspaceCounter(store)
		defer rival.Close()

		var in kv.BinaryInterceptor
		c := NewKeyspaceCounter(
			kv.WithInterceptor(store, &in),
			WithMaxAttempts(2),
		)
		defer c.Close()

		in.BeforeSet(func(string, []byte, []byte) error {
			_, err := rival.Next(t.Context(), "2025-01-01")
			return err
		})

		_, err := c.Next(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if !kv.IsConflict(err) {
			t.Fatalf("expected error to wrap a conflict, got %v", err)
		}
	})

	t.Run("it can be closed while another goroutine is issuing identifiers", func(t *testing.T) {
		c := NewKeyspaceCounter(&memorykv.BinaryStore{})

		var g sync.WaitGroup
		g.Add(2)

		go func() {
			defer g.Done()
			for range 100 {
				if _, err := c.Next(t.Context(), "2025-01-01"); err != nil {
					if !errors.Is(err, visit.ErrUnavailable) {
						t.Errorf("expected error to match %v, got %v", visit.ErrUnavailable, err)
					}
					return
				}
			}
		}()

		go func() {
			defer g.Done()
			if err := c.Close(); err != nil {
				t.Error(err)
			}
		}()

		g.Wait()
	})

	t.Run("it fails after it is closed", func(t *testing.T) {
		c := NewKeyspaceCounter(&memorykv.BinaryStore{})

		if _, err := c.Next(t.Context(), "2025-01-01"); err != nil {
			t.Fatal(err)
		}

		if err := c.Close(); err != nil {
			t.Fatal(err)
		}

		if _, err := c.Next(t.Context(), "2025-01-01"); !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if err := c.Close(); err != nil {
			t.Fatalf("unexpected error closing twice: %v", err)
		}
	})

	t.Run("it panics if the base is invalid", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic")
			}
		}()

		WithBase(visit.MaxID + 1)
	})
}

type counterFunc func(visit.Epoch) (visit.ID, error)

func (fn counterFunc) Next(_ context.Context, e visit.Epoch) (visit.ID, error) {
	return fn(e)
}
