// Package registrar records issued visits in durable storage.
package registrar

import (
	"context"
	"time"

	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is the default bound on each write to the record store.
const DefaultTimeout = 5 * time.Second

// RecordStore is durable storage for visit records.
type RecordStore interface {
	// Insert writes rec. Each visit is inserted at most once.
	Insert(ctx context.Context, rec visit.Record) error
}

// Registrar writes visit records on a best-effort basis.
//
// A visit's identifier is already issued by the time it is registered, so a
// failure to register is reported but never undoes the allocation.
type Registrar struct {
	store     RecordStore
	timeout   time.Duration
	telemetry *telemetry.Recorder

	registered metric.Int64Counter
	failures   metric.Int64Counter
}

// Option is an option that changes the behavior of a [Registrar].
type Option func(*options)

type options struct {
	timeout   time.Duration
	telemetry telemetry.Provider
}

// WithTimeout is an [Option] that sets the bound on each write to the record
// store.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTelemetry is an [Option] that configures the registrar to use the given
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

// New returns a [Registrar] that writes records to s.
func New(s RecordStore, opts ...Option) *Registrar {
	o := options{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(&o)
	}

	r := o.telemetry.Recorder(
		"github.com/subaru-pfs/seqno/registrar",
		"registrar",
		telemetry.Type("store", s),
	)

	return &Registrar{
		store:     s,
		timeout:   o.timeout,
		telemetry: r,
		registered: r.Int64Counter(
			"registered",
			metric.WithDescription("The number of visit records written."),
			metric.WithUnit("{record}"),
		),
		failures: r.Int64Counter(
			"failures",
			metric.WithDescription("The number of visit records that could not be written."),
			metric.WithUnit("{record}"),
		),
	}
}

// Register writes rec to the record store.
//
// Failures are logged as warnings and otherwise ignored. The write is not
// retried.
func (r *Registrar) Register(ctx context.Context, rec visit.Record) {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"register",
		telemetry.Int("visit", rec.Visit),
		telemetry.String("caller", rec.Caller),
		telemetry.Int("design_id", rec.DesignID),
	)
	defer span.End()

	if err := r.insert(ctx, rec); err != nil {
		r.failures.Add(ctx, 1)
		span.Warn(
			"could not record visit, the visit ID remains issued",
			visit.PersistenceFailedError{
				Visit: rec.Visit,
				Cause: err,
			},
		)
		return
	}

	r.registered.Add(ctx, 1)
	span.Debug("recorded visit")
}

func (r *Registrar) insert(ctx context.Context, rec visit.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.store.Insert(ctx, rec)
}
