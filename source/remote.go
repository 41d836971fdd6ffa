package source

import (
	"context"
	"fmt"
	"time"

	"github.com/subaru-pfs/seqno/visit"
)

// DefaultRemoteTimeout is the default bound on a single request to a
// [Remote] source.
const DefaultRemoteTimeout = 2 * time.Second

// Fetcher obtains the next identifier from an external numbering authority.
type Fetcher interface {
	FetchNext(ctx context.Context) (int64, error)
}

// FetcherFunc is an adaptor that allows an ordinary function to be used as a
// [Fetcher].
type FetcherFunc func(ctx context.Context) (int64, error)

// FetchNext returns fn(ctx).
func (fn FetcherFunc) FetchNext(ctx context.Context) (int64, error) {
	return fn(ctx)
}

// Remote is a [Source] that draws identifiers from an external numbering
// authority.
//
// The authority keeps its own sequence, so the epoch is not sent to it.
type Remote struct {
	name    string
	fetcher Fetcher
	timeout time.Duration
}

// RemoteOption is an option that changes the behavior of a [Remote].
type RemoteOption func(*Remote)

// WithRemoteName is a [RemoteOption] that sets the name of the source.
func WithRemoteName(name string) RemoteOption {
	return func(r *Remote) {
		r.name = name
	}
}

// WithRemoteTimeout is a [RemoteOption] that sets the bound on each request.
func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.timeout = d
	}
}

// NewRemote returns a [Remote] that uses f to fetch identifiers.
func NewRemote(f Fetcher, options ...RemoteOption) *Remote {
	r := &Remote{
		name:    "remote",
		fetcher: f,
		timeout: DefaultRemoteTimeout,
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Name returns the name of the source.
func (r *Remote) Name() string {
	return r.name
}

// TryNext fetches the next identifier. The epoch is ignored.
//
// TryNext returns once the timeout elapses even if the fetcher does not
// honor ctx.
func (r *Remote) TryNext(ctx context.Context, _ visit.Epoch) (visit.ID, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		n   int64
		err error
	}

	done := make(chan result, 1)

	go func() {
		n, err := r.fetcher.FetchNext(ctx)
		done <- result{n, err}
	}()

	select {
	case <-ctx.Done():
		return 0, visit.Unavailable(
			r.name,
			fmt.Errorf("no response within %s: %w", r.timeout, ctx.Err()),
		)
	case res := <-done:
		if res.err != nil {
			return 0, visit.Unavailable(r.name, res.err)
		}

		id, err := visit.ParseID(res.n)
		if err != nil {
			return 0, visit.Unavailable(
				r.name,
				fmt.Errorf("malformed response: %w", err),
			)
		}

		return id, nil
	}
}
