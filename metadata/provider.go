// Package metadata resolves the metadata attached to each visit record.
package metadata

import (
	"context"

	"github.com/subaru-pfs/seqno/visit"
)

// Provider is a source of the current design identifier.
type Provider interface {
	// Name returns a short human-readable name for the provider.
	Name() string

	// DesignID returns the design identifier currently held by the provider.
	//
	// ok is false if the provider holds no value.
	DesignID(ctx context.Context) (d visit.DesignID, ok bool, err error)
}

// Static is a [Provider] that always holds the same value.
type Static struct {
	// Label is the name of the provider. If it is empty "static" is used.
	Label string

	// Value is the design identifier held by the provider.
	Value visit.DesignID
}

// Name returns the name of the provider.
func (p Static) Name() string {
	if p.Label == "" {
		return "static"
	}
	return p.Label
}

// DesignID returns p.Value.
func (p Static) DesignID(context.Context) (visit.DesignID, bool, error) {
	return p.Value, p.Value.IsResolved(), nil
}

// ProviderFunc is an adaptor that allows an ordinary function to be used as a
// [Provider].
type ProviderFunc struct {
	// Label is the name of the provider.
	Label string

	// Func is the function that returns the design identifier.
	Func func(ctx context.Context) (visit.DesignID, bool, error)
}

// Name returns the name of the provider.
func (p ProviderFunc) Name() string {
	return p.Label
}

// DesignID returns p.Func(ctx).
func (p ProviderFunc) DesignID(ctx context.Context) (visit.DesignID, bool, error) {
	return p.Func(ctx)
}
