// Package source defines the tiers from which visit identifiers are drawn.
package source

import (
	"context"

	"github.com/subaru-pfs/seqno/visit"
)

// Source is a provider of visit identifiers.
type Source interface {
	// Name returns a short human-readable name for the source.
	Name() string

	// TryNext returns the next identifier for e.
	//
	// Every failure, including a timeout, is reported as an error matching
	// [visit.ErrUnavailable], in which case no identifier has been issued.
	TryNext(ctx context.Context, e visit.Epoch) (visit.ID, error)
}
