package metadata

import (
	"context"
	"time"

	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is the default bound on each read from a single provider.
const DefaultTimeout = 2 * time.Second

// Resolver determines the design identifier to attach to a visit record.
type Resolver struct {
	providers []Provider
	timeout   time.Duration
	telemetry *telemetry.Recorder
}

// Option is an option that changes the behavior of a [Resolver].
type Option func(*options)

type options struct {
	timeout   time.Duration
	telemetry telemetry.Provider
}

// WithTimeout is an [Option] that sets the bound on each read from a single
// provider.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTelemetry is an [Option] that configures the resolver to use the given
// telemetry providers.
func WithTelemetry(
	p trace.TracerProvider,
	m metric.MeterProvider,
	l log.LoggerProvider,
) Option {
	return func(o *options) {
		o.telemetry = telemetry.Provider{
			TracerProvider: p,
			MeterProvider:  m,
			LoggerProvider: l,
		}
	}
}

// NewResolver returns a [Resolver] that consults providers in priority order.
func NewResolver(providers []Provider, opts ...Option) *Resolver {
	o := options{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Resolver{
		providers: providers,
		timeout:   o.timeout,
		telemetry: o.telemetry.Recorder(
			"github.com/subaru-pfs/seqno/metadata",
			"resolver",
		),
	}
}

// ResolveDesignID returns the design identifier to record.
//
// If explicit is non-nil its value is returned without consulting any
// provider. Otherwise the value of the first provider that holds a resolved
// value is returned. A provider that fails is treated as holding no value.
//
// If no provider holds a value it returns a [visit.ResolutionFailedError].
func (r *Resolver) ResolveDesignID(ctx context.Context, explicit *visit.DesignID) (visit.DesignID, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "resolve_design_id")
	defer span.End()

	if explicit != nil {
		span.SetAttributes(
			telemetry.Int("design_id", *explicit),
			telemetry.Bool("explicit", true),
		)
		span.Debug("using explicit design ID")
		return *explicit, nil
	}

	failure := visit.ResolutionFailedError{
		Key: DesignIDKey,
	}

	for _, p := range r.providers {
		failure.Sources = append(failure.Sources, p.Name())

		d, ok, err := r.read(ctx, p)
		if err != nil {
			failure.Causes = append(failure.Causes, err)
			span.Debug(
				"design ID provider failed",
				telemetry.String("provider", p.Name()),
				telemetry.String("error", err.Error()),
			)
			continue
		}

		if ok {
			span.SetAttributes(
				telemetry.Int("design_id", d),
				telemetry.String("provider", p.Name()),
			)
			span.Debug("resolved design ID")
			return d, nil
		}
	}

	span.Debug("no provider holds a design ID")

	return 0, failure
}

func (r *Resolver) read(ctx context.Context, p Provider) (visit.DesignID, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	d, ok, err := p.DesignID(ctx)
	if err != nil {
		return 0, false, visit.Unavailable(p.Name(), err)
	}

	return d, ok && d.IsResolved(), nil
}
