// Package service implements the allocateVisit operation.
package service

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/subaru-pfs/seqno/allocator"
	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Allocator issues visit identifiers.
type Allocator interface {
	Allocate(ctx context.Context, e visit.Epoch) (allocator.Allocation, error)
}

// Resolver resolves the design identifier to attach to a visit record.
type Resolver interface {
	ResolveDesignID(ctx context.Context, explicit *visit.DesignID) (visit.DesignID, error)
}

// Registrar records issued visits on a best-effort basis.
type Registrar interface {
	Register(ctx context.Context, rec visit.Record)
}

// Request is a request to allocate a visit.
type Request struct {
	// Caller optionally identifies the requester.
	Caller string

	// DesignID, if non-nil, is recorded instead of resolving the design ID
	// from the upstream models.
	DesignID *visit.DesignID
}

// Response is the result of a successful allocation.
type Response struct {
	Visit visit.ID
}

// Service allocates visits.
type Service struct {
	allocator Allocator
	resolver  Resolver
	registrar Registrar
	clock     clockwork.Clock
	epoch     visit.Epoch
	telemetry *telemetry.Recorder
}

// Option is an option that changes the behavior of a [Service].
type Option func(*options)

type options struct {
	clock     clockwork.Clock
	epoch     visit.Epoch
	telemetry telemetry.Provider
}

// WithClock is an [Option] that sets the clock used to timestamp each issued
// visit.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithEpoch is an [Option] that sets the epoch under which identifiers are
// counted. It defaults to [visit.DefaultEpoch].
func WithEpoch(e visit.Epoch) Option {
	return func(o *options) {
		o.epoch = e
	}
}

// WithTelemetry is an [Option] that configures the service to use the given
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

// New returns a new [Service].
func New(
	a Allocator,
	r Resolver,
	g Registrar,
	opts ...Option,
) *Service {
	o := options{
		clock: clockwork.NewRealClock(),
		epoch: visit.DefaultEpoch,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		allocator: a,
		resolver:  r,
		registrar: g,
		clock:     o.clock,
		epoch:     o.epoch,
		telemetry: o.telemetry.Recorder(
			"github.com/subaru-pfs/seqno/service",
			"service",
		),
	}
}

// Epoch returns the epoch under which the service issues identifiers.
func (s *Service) Epoch() visit.Epoch {
	return s.epoch
}

// AllocateVisit issues a new visit identifier and records it.
//
// It fails only if no identifier could be issued, in which case the error
// matches [visit.ErrAllocationExhausted] and no record is written. Failure to
// resolve the design ID or to write the record is logged as a warning.
func (s *Service) AllocateVisit(ctx context.Context, req Request) (Response, error) {
	ctx, span := s.telemetry.StartSpan(
		ctx,
		"allocate_visit",
		telemetry.String("caller", req.Caller),
	)
	defer span.End()

	design, err := s.resolver.ResolveDesignID(ctx, req.DesignID)
	if err != nil {
		span.Warn(
			"could not resolve design ID, recording the visit without one",
			err,
			telemetry.Int("design_id", visit.UnresolvedDesignID),
		)
		design = visit.UnresolvedDesignID
	}

	epoch := s.epoch
	span.SetAttributes(
		telemetry.String("epoch", epoch),
		telemetry.Int("design_id", design),
	)

	alloc, err := s.allocator.Allocate(ctx, epoch)
	if err != nil {
		span.Error("could not allocate visit", err)
		return Response{}, err
	}

	span.SetAttributes(
		telemetry.Int("visit", alloc.Visit),
		telemetry.String("source", alloc.Source),
	)

	// The identifier is issued, so the record is written even if the
	// requester has given up waiting.
	s.registrar.Register(
		context.WithoutCancel(ctx),
		visit.Record{
			Visit:    alloc.Visit,
			Caller:   req.Caller,
			DesignID: design,
			IssuedAt: s.clock.Now(),
		},
	)

	span.Info("allocated visit")

	return Response{Visit: alloc.Visit}, nil
}
