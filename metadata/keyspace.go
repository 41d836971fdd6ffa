package metadata

import (
	"context"
	"fmt"

	"github.com/subaru-pfs/seqno/kv"
	"github.com/subaru-pfs/seqno/marshaler"
	"github.com/subaru-pfs/seqno/visit"
)

// DesignIDKey is the key under which upstream models publish the design
// identifier.
const DesignIDKey = "designId"

// DefaultModels are the upstream models consulted for the design identifier,
// in priority order.
var DefaultModels = []string{"iic", "fps"}

// KeyspaceProvider is a [Provider] that reads the design identifier from the
// keyspace in which an upstream model publishes its keywords.
//
// Values are stored as base-10 ASCII integers.
type KeyspaceProvider struct {
	model string
	store kv.Store[string, *visit.DesignID]
}

// designIDMarshaler marshals a published design ID. Only a nil value is
// stored as an empty value, so zero remains a valid design ID.
var designIDMarshaler = marshaler.New(
	func(d *visit.DesignID) ([]byte, error) {
		return marshaler.DecimalInt64.Marshal(int64(*d))
	},
	func(data []byte) (*visit.DesignID, error) {
		n, err := marshaler.DecimalInt64.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		d := visit.DesignID(n)
		return &d, nil
	},
)

// NewKeyspaceProvider returns a [KeyspaceProvider] that reads the keyspace
// named after model from s.
func NewKeyspaceProvider(s kv.BinaryStore, model string) *KeyspaceProvider {
	return &KeyspaceProvider{
		model: model,
		store: kv.NewMarshalingStore(s, marshaler.String, designIDMarshaler),
	}
}

// NewKeyspaceProviders returns a [KeyspaceProvider] for each of the given
// models, in the same order.
func NewKeyspaceProviders(s kv.BinaryStore, models ...string) []Provider {
	var providers []Provider
	for _, m := range models {
		providers = append(providers, NewKeyspaceProvider(s, m))
	}
	return providers
}

// Name returns the name of the upstream model.
func (p *KeyspaceProvider) Name() string {
	return p.model
}

// DesignID returns the design identifier most recently published by the
// model.
func (p *KeyspaceProvider) DesignID(ctx context.Context) (visit.DesignID, bool, error) {
	ks, err := p.store.Open(ctx, p.model)
	if err != nil {
		return 0, false, fmt.Errorf("cannot open %q keyspace: %w", p.model, err)
	}
	defer ks.Close()

	v, r, err := ks.Get(ctx, DesignIDKey)
	if err != nil {
		return 0, false, fmt.Errorf("cannot read %q from %q keyspace: %w", DesignIDKey, p.model, err)
	}

	if r == 0 || v == nil {
		return 0, false, nil
	}

	return *v, v.IsResolved(), nil
}

// Publish replaces the design identifier held by the model.
func (p *KeyspaceProvider) Publish(ctx context.Context, d visit.DesignID) error {
	return p.set(ctx, &d)
}

// Clear removes the design identifier held by the model.
func (p *KeyspaceProvider) Clear(ctx context.Context) error {
	return p.set(ctx, nil)
}

func (p *KeyspaceProvider) set(ctx context.Context, d *visit.DesignID) error {
	ks, err := p.store.Open(ctx, p.model)
	if err != nil {
		return fmt.Errorf("cannot open %q keyspace: %w", p.model, err)
	}
	defer ks.Close()

	for {
		_, r, err := ks.Get(ctx, DesignIDKey)
		if err != nil {
			return fmt.Errorf("cannot read %q from %q keyspace: %w", DesignIDKey, p.model, err)
		}

		err = ks.Set(ctx, DesignIDKey, d, r)
		if !kv.IsConflict(err) {
			return err
		}
	}
}
