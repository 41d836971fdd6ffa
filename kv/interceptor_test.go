package kv_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/subaru-pfs/seqno/driver/memory/memorykv"
	. "github.com/subaru-pfs/seqno/kv"
)

func TestWithInterceptor(t *testing.T) {
	t.Parallel()

	setup := func() (BinaryStore, *BinaryInterceptor) {
		var in BinaryInterceptor
		return WithInterceptor(&memorykv.BinaryStore{}, &in), &in
	}

	RunTests(
		t,
		WithInterceptor(
			&memorykv.BinaryStore{},
			&BinaryInterceptor{},
		),
	)

	t.Run("it returns the given store if no interceptor is provided", func(t *testing.T) {
		t.Parallel()

		underlying := &memorykv.BinaryStore{}
		store := WithInterceptor(underlying, nil)

		if store != underlying {
			t.Fatalf("unexpected store: got %T, want %T", store, underlying)
		}
	})

	t.Run("it invokes the BeforeOpen function", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		want := errors.New("<error>")
		in.BeforeOpen(func(string) error {
			return want
		})

		_, got := store.Open(t.Context(), "<keyspace>")
		if got != want {
			t.Fatalf("unexpected error: got %v, want %v", got, want)
		}
	})

	t.Run("it invokes the BeforeGet function", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		ks, err := store.Open(t.Context(), "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		want := errors.New("<error>")
		in.BeforeGet(func(name string, k []byte) error {
			if name != "<keyspace>" {
				t.Errorf("unexpected keyspace name: got %q, want %q", name, "<keyspace>")
			}
			return want
		})

		_, _, got := ks.Get(t.Context(), []byte("<key>"))
		if got != want {
			t.Fatalf("unexpected error: got %v, want %v", got, want)
		}
	})

	t.Run("it invokes the BeforeSet function", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		want := errors.New("<error>")
		in.BeforeSet(func(string, []byte, []byte) error {
			return want
		})

		ks, err := store.Open(t.Context(), "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		err = ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 0)
		if err != want {
			t.Fatalf("unexpected error: got %v, want %v", err, want)
		}

		ok, err := ks.Has(t.Context(), []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("did not expect key to be set")
		}
	})

	t.Run("it invokes the AfterSet function", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		want := errors.New("<error>")
		in.AfterSet(func(string, []byte, []byte) error {
			return want
		})

		ks, err := store.Open(t.Context(), "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		err = ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 0)
		if err != want {
			t.Fatalf("unexpected error: got %v, want %v", err, want)
		}

		v, r, err := ks.Get(t.Context(), []byte("<key>"))
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(v, []byte("<value>")) {
			t.Fatalf("unexpected value: got %q, want %q", string(v), "<value>")
		}

		if r != 1 {
			t.Fatalf("unexpected revision: got %d, want 1", r)
		}
	})

	t.Run("it does not invoke AfterSet when the write conflicts", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		in.AfterSet(func(string, []byte, []byte) error {
			t.Error("unexpected call")
			return nil
		})

		ks, err := store.Open(t.Context(), "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		err = ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 1)
		if !IsConflict(err) {
			t.Fatalf("expected a conflict error, got %v", err)
		}
	})

	t.Run("it allows functions to be cleared", func(t *testing.T) {
		t.Parallel()

		store, in := setup()

		in.BeforeOpen(func(string) error {
			t.Fatal("unexpected call")
			return nil
		})

		in.BeforeGet(func(string, []byte) error {
			t.Fatal("unexpected call")
			return nil
		})

		in.BeforeSet(func(string, []byte, []byte) error {
			t.Fatal("unexpected call")
			return nil
		})

		in.AfterSet(func(string, []byte, []byte) error {
			t.Fatal("unexpected call")
			return nil
		})

		in.BeforeOpen(nil)
		in.BeforeGet(nil)
		in.BeforeSet(nil)
		in.AfterSet(nil)

		ks, err := store.Open(t.Context(), "<keyspace>")
		if err != nil {
			t.Fatal(err)
		}
		defer ks.Close()

		if err := ks.Set(t.Context(), []byte("<key>"), []byte("<value>"), 0); err != nil {
			t.Fatal(err)
		}

		if _, _, err := ks.Get(t.Context(), []byte("<key>")); err != nil {
			t.Fatal(err)
		}
	})
}
