//go:build unix

// Package filecounter provides a [counter.Counter] that keeps one decimal
// counter file per epoch on a local or shared file system.
package filecounter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/marshaler"
	"github.com/subaru-pfs/seqno/visit"
)

const (
	// DefaultLockTimeout is the maximum time to wait for another process to
	// release the lock on an epoch's counter file.
	DefaultLockTimeout = 5 * time.Second

	fileSuffix = ".seqno"
	lockSuffix = ".lock"
)

// Counter is a [counter.Counter] that stores the next free identifier of each
// epoch in the file <root>/<epoch>.seqno.
//
// Access to each counter file is serialized across processes by an exclusive
// flock(2) on <root>/<epoch>.seqno.lock.
type Counter struct {
	root        string
	base        visit.ID
	lockTimeout time.Duration
}

var (
	_ counter.Counter = (*Counter)(nil)
	_ counter.Peeker  = (*Counter)(nil)
)

// Option is an option that changes the behavior of a [Counter].
type Option func(*Counter)

// WithBase is an [Option] that sets the first identifier issued for a fresh
// epoch. It panics if base is not a valid [visit.ID].
func WithBase(base visit.ID) Option {
	if err := base.Validate(); err != nil {
		panic(fmt.Sprintf("invalid counter base: %s", err))
	}
	return func(c *Counter) {
		c.base = base
	}
}

// WithLockTimeout is an [Option] that sets the maximum time to wait for the
// lock on a counter file.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Counter) {
		c.lockTimeout = d
	}
}

// New returns a [Counter] that keeps its files in root. The directory is
// created on first use if it does not exist.
func New(root string, options ...Option) *Counter {
	c := &Counter{
		root:        root,
		base:        counter.DefaultBase,
		lockTimeout: DefaultLockTimeout,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Root returns the directory that contains the counter files.
func (c *Counter) Root() string {
	return c.root
}

// Path returns the path of the counter file for e.
func (c *Counter) Path(e visit.Epoch) string {
	return filepath.Join(c.root, string(e)+fileSuffix)
}

// Next returns the next identifier for e.
//
// The successor is written to a temporary file which is synced and renamed
// over the counter file, and the directory is synced, before Next returns.
func (c *Counter) Next(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, c.unavailable(err)
	}

	unlock, err := c.lock(ctx, e)
	if err != nil {
		return 0, c.unavailable(err)
	}
	defer unlock()

	id, err := c.read(e)
	if err != nil {
		return 0, c.unavailable(err)
	}

	if id > visit.MaxID {
		return 0, c.unavailable(
			fmt.Errorf("epoch %q has issued %s: %w", e, visit.MaxID, visit.ErrRangeExhausted),
		)
	}

	if err := c.write(e, id+1); err != nil {
		return 0, c.unavailable(err)
	}

	return id, nil
}

// Peek returns the identifier that the next call to [Counter.Next] would
// return for e.
//
// It does not take the lock, so the result may be stale by the time it is
// returned.
func (c *Counter) Peek(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, c.unavailable(err)
	}

	id, err := c.read(e)
	if err != nil {
		return 0, c.unavailable(err)
	}

	if id > visit.MaxID {
		return 0, c.unavailable(
			fmt.Errorf("epoch %q has issued %s: %w", e, visit.MaxID, visit.ErrRangeExhausted),
		)
	}

	return id, nil
}

// read returns the next free identifier stored in e's counter file, or the
// base if the file does not exist.
func (c *Counter) read(e visit.Epoch) (visit.ID, error) {
	data, err := os.ReadFile(c.Path(e))
	if os.IsNotExist(err) {
		return c.base, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cannot read counter file: %w", err)
	}

	n, err := marshaler.DecimalInt64.Unmarshal(bytes.TrimSpace(data))
	if err != nil {
		return 0, fmt.Errorf("counter file %s is corrupt: %w", c.Path(e), err)
	}

	if n < 1 || n > int64(visit.MaxID)+1 {
		return 0, fmt.Errorf("counter file %s holds %d, which is outside the identifier range", c.Path(e), n)
	}

	return visit.ID(n), nil
}

// write durably replaces e's counter file so that it contains next.
func (c *Counter) write(e visit.Epoch, next visit.ID) (err error) {
	data, err := marshaler.DecimalInt64.Marshal(int64(next))
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(c.root, string(e)+fileSuffix+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temporary counter file: %w", err)
	}

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("cannot write temporary counter file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("cannot sync temporary counter file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot close temporary counter file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.Path(e)); err != nil {
		return fmt.Errorf("cannot replace counter file: %w", err)
	}

	return syncDir(c.root)
}

func (c *Counter) unavailable(err error) error {
	return visit.Unavailable("file counter at "+c.root, err)
}

// syncDir flushes the directory entry changes made by a rename.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("cannot open counter directory: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("cannot sync counter directory: %w", err)
	}

	return nil
}
