//go:build unix

package filecounter_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/subaru-pfs/seqno/counter"
	. "github.com/subaru-pfs/seqno/driver/file/filecounter"
	"github.com/subaru-pfs/seqno/visit"
	"golang.org/x/sys/unix"
)

func TestCounter(t *testing.T) {
	root := t.TempDir()

	counter.RunTests(
		t,
		func(_ *testing.T, base visit.ID) counter.Counter {
			// Contention in the concurrency tests can delay a waiter well
			// beyond the default lock timeout.
			return New(
				root,
				WithBase(base),
				WithLockTimeout(time.Minute),
			)
		},
	)

	t.Run("it stores the next free value as a decimal string", func(t *testing.T) {
		c := New(t.TempDir())

		if _, err := c.Next(t.Context(), "2025-01-01"); err != nil {
			t.Fatal(err)
		}

		data, err := os.ReadFile(c.Path("2025-01-01"))
		if err != nil {
			t.Fatal(err)
		}

		if got, want := string(data), "2\n"; got != want {
			t.Fatalf("unexpected file content: got %q, want %q", got, want)
		}
	})

	t.Run("it creates the root directory on first use", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "counters")
		c := New(root)

		id, err := c.Next(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 1 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(1))
		}

		if _, err := os.Stat(filepath.Join(root, "2025-01-01.seqno")); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("it does not leave temporary files behind", func(t *testing.T) {
		root := t.TempDir()
		c := New(root)

		for range 3 {
			if _, err := c.Next(t.Context(), "2025-01-01"); err != nil {
				t.Fatal(err)
			}
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}

		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}

		if len(names) != 2 {
			t.Fatalf("unexpected directory entries: %v", names)
		}
	})

	t.Run("it resumes from a counter file written by another process", func(t *testing.T) {
		root := t.TempDir()

		if err := os.WriteFile(filepath.Join(root, "2025-01-01.seqno"), []byte("42\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		id, err := New(root).Next(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 42 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(42))
		}
	})

	t.Run("it refuses to issue from a corrupt counter file", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "2025-01-01.seqno")

		for _, content := range []string{"<garbage>", "0", "-5", "1000001"} {
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}

			_, err := New(root).Next(t.Context(), "2025-01-01")
			if !errors.Is(err, visit.ErrUnavailable) {
				t.Fatalf("content %q: expected error to match %v, got %v", content, visit.ErrUnavailable, err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}

			if string(data) != content {
				t.Fatalf("content %q: corrupt counter file was overwritten with %q", content, string(data))
			}
		}
	})

	t.Run("it gives up when the lock is held for longer than the lock timeout", func(t *testing.T) {
		root := t.TempDir()
		c := New(root, WithLockTimeout(50*time.Millisecond))

		// Hold the lock through a separate file description, as another
		// process would.
		f, err := os.OpenFile(c.Path("2025-01-01")+".lock", os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
			t.Fatal(err)
		}

		start := time.Now()
		_, err = c.Next(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}

		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Fatalf("lock wait was not bounded: took %s", elapsed)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
			t.Fatal(err)
		}

		id, err := c.Next(t.Context(), "2025-01-01")
		if err != nil {
			t.Fatal(err)
		}

		if id != 1 {
			t.Fatalf("unexpected visit ID: got %s, want %s", id, visit.ID(1))
		}
	})

	t.Run("it reports the store as unavailable when the directory is not writable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("file permissions are not enforced for root")
		}

		root := t.TempDir()
		if err := os.Chmod(root, 0o555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(root, 0o755) })

		_, err := New(root).Next(t.Context(), "2025-01-01")
		if !errors.Is(err, visit.ErrUnavailable) {
			t.Fatalf("expected error to match %v, got %v", visit.ErrUnavailable, err)
		}
	})
}
