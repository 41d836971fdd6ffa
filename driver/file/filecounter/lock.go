//go:build unix

package filecounter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/subaru-pfs/seqno/visit"
	"golang.org/x/sys/unix"
)

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 250 * time.Millisecond
)

// lock takes the exclusive lock for e's counter file. It polls until the lock
// is acquired, the lock timeout elapses or ctx is done.
func (c *Counter) lock(ctx context.Context, e visit.Epoch) (unlock func(), err error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create counter directory: %w", err)
	}

	path := c.Path(e) + lockSuffix

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock file: %w", err)
	}

	unlock = func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	backoff := minLockBackoff
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("cannot lock %s within %s: %w", path, c.lockTimeout, ctx.Err())
		case <-timer.C:
		}

		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return unlock, nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("cannot lock %s: %w", path, err)
		}

		timer.Reset(backoff)
		backoff = min(backoff*2, maxLockBackoff)
	}
}
