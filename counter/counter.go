// Package counter defines durable per-epoch sequences of visit identifiers.
package counter

import (
	"context"
	"fmt"

	"github.com/subaru-pfs/seqno/visit"
)

// DefaultBase is the first identifier issued for a fresh epoch.
const DefaultBase visit.ID = 1

// Counter is a durable sequence of visit identifiers, one per epoch.
//
// Implementations must provide mutual exclusion across every process that
// shares the same storage. Two calls to Next for the same epoch never return
// the same identifier.
type Counter interface {
	// Next returns the next identifier for e.
	//
	// The successor of the returned identifier is persisted before Next
	// returns. If persistence fails no identifier is returned, and the error
	// matches [visit.ErrUnavailable].
	Next(ctx context.Context, e visit.Epoch) (visit.ID, error)
}

// Peeker is implemented by counters that can report the identifier that the
// next call to [Counter.Next] would return, without issuing it.
type Peeker interface {
	Peek(ctx context.Context, e visit.Epoch) (visit.ID, error)
}

// successor returns the value to persist after issuing id, or an error if id
// itself is outside of the identifier budget.
func successor(id visit.ID) (uint64, error) {
	if id > visit.MaxID {
		return 0, fmt.Errorf("next free value is %d: %w", uint32(id), visit.ErrRangeExhausted)
	}
	return uint64(id) + 1, nil
}

// checkBase panics if base can never be issued.
func checkBase(base visit.ID) {
	if err := base.Validate(); err != nil {
		panic(fmt.Sprintf("invalid counter base: %s", err))
	}
}
