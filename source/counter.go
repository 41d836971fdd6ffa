package source

import (
	"context"

	"github.com/subaru-pfs/seqno/counter"
	"github.com/subaru-pfs/seqno/visit"
)

// Counter is a [Source] that draws identifiers from a [counter.Counter].
type Counter struct {
	name    string
	counter counter.Counter
}

// NewCounter returns a [Counter] source named name that draws identifiers
// from c.
func NewCounter(name string, c counter.Counter) *Counter {
	return &Counter{name, c}
}

// Name returns the name of the source.
func (s *Counter) Name() string {
	return s.name
}

// TryNext returns the next identifier from the counter.
func (s *Counter) TryNext(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	id, err := s.counter.Next(ctx, e)
	if err != nil {
		return 0, visit.Unavailable(s.name, err)
	}
	return id, nil
}

