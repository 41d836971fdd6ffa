// Package allocator issues visit identifiers from an ordered chain of sources.
package allocator

import (
	"context"
	"time"

	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/source"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is the default bound on each attempt to draw an identifier
// from a single source.
const DefaultTimeout = 5 * time.Second

// Allocation is the result of a successful call to [Allocator.Allocate].
type Allocation struct {
	// Visit is the issued identifier.
	Visit visit.ID

	// Source is the name of the source that issued it.
	Source string
}

// Allocator issues visit identifiers by trying each of its sources in order
// until one succeeds.
//
// Sources after the first successful one are never contacted. If every source
// fails the allocation fails; it is never retried automatically.
//
// Identifiers from different sources are not coordinated, so falling back to
// a later source can leave gaps in that source's sequence, or repeat numbers
// that an earlier source has issued under a different scheme.
type Allocator struct {
	sources   []source.Source
	timeout   time.Duration
	telemetry *telemetry.Recorder

	allocations metric.Int64Counter
	fallbacks   metric.Int64Counter
	exhaustions metric.Int64Counter
	latency     metric.Int64Histogram
}

// Option is an option that changes the behavior of an [Allocator].
type Option func(*options)

type options struct {
	timeout   time.Duration
	telemetry telemetry.Provider
}

// WithTimeout is an [Option] that sets the bound on each attempt to draw an
// identifier from a single source.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTelemetry is an [Option] that configures the allocator to use the given
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

// New returns an [Allocator] that tries sources in the given order.
func New(sources []source.Source, opts ...Option) *Allocator {
	o := options{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(&o)
	}

	r := o.telemetry.Recorder(
		"github.com/subaru-pfs/seqno/allocator",
		"allocator",
		telemetry.Int("sources", len(sources)),
	)

	return &Allocator{
		sources:   sources,
		timeout:   o.timeout,
		telemetry: r,
		allocations: r.Int64Counter(
			"allocations",
			metric.WithDescription("The number of visit IDs issued, by source."),
			metric.WithUnit("{visit}"),
		),
		fallbacks: r.Int64Counter(
			"fallbacks",
			metric.WithDescription("The number of times a source failed and the next source was tried."),
			metric.WithUnit("{attempt}"),
		),
		exhaustions: r.Int64Counter(
			"exhaustions",
			metric.WithDescription("The number of allocations that failed because every source failed."),
			metric.WithUnit("{allocation}"),
		),
		latency: r.Int64Histogram(
			"source.latency",
			metric.WithDescription("The time taken by each attempt to draw an identifier from a source."),
			metric.WithUnit("ms"),
		),
	}
}

// Allocate returns a newly issued identifier for e.
//
// It returns a [visit.AllocationExhaustedError] if no source could issue an
// identifier.
func (a *Allocator) Allocate(ctx context.Context, e visit.Epoch) (Allocation, error) {
	ctx, span := a.telemetry.StartSpan(
		ctx,
		"allocate",
		telemetry.String("epoch", e),
	)
	defer span.End()

	var causes []error

	for i, src := range a.sources {
		start := time.Now()
		id, err := a.try(ctx, src, e)
		elapsed := time.Since(start)

		a.latency.Record(
			ctx,
			elapsed.Milliseconds(),
			metric.WithAttributes(
				attribute.String("source", src.Name()),
				attribute.Bool("ok", err == nil),
			),
		)

		if err == nil {
			a.allocations.Add(
				ctx,
				1,
				metric.WithAttributes(attribute.String("source", src.Name())),
			)

			span.SetAttributes(
				telemetry.Int("visit", id),
				telemetry.String("source", src.Name()),
				telemetry.Int("attempts", i+1),
			)
			span.Debug(
				"allocated visit ID",
				telemetry.Duration("elapsed", elapsed),
				telemetry.If(i > 0, telemetry.Bool("fallback", true)),
			)

			return Allocation{
				Visit:  id,
				Source: src.Name(),
			}, nil
		}

		causes = append(causes, err)

		if i < len(a.sources)-1 {
			a.fallbacks.Add(ctx, 1)
			span.Warn(
				"identifier source failed, falling back to the next source",
				err,
				telemetry.String("source", src.Name()),
				telemetry.String("next_source", a.sources[i+1].Name()),
				telemetry.Duration("elapsed", elapsed),
			)
		}
	}

	err := visit.AllocationExhaustedError{
		Epoch:  e,
		Causes: causes,
	}

	a.exhaustions.Add(ctx, 1)
	span.Error("could not allocate visit ID, all sources failed", err)

	return Allocation{}, err
}

// try draws a single identifier from src within the allocator's timeout.
func (a *Allocator) try(ctx context.Context, src source.Source, e visit.Epoch) (visit.ID, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	id, err := src.TryNext(ctx, e)
	if err != nil {
		return 0, visit.Unavailable(src.Name(), err)
	}

	if err := id.Validate(); err != nil {
		return 0, visit.Unavailable(src.Name(), err)
	}

	return id, nil
}
