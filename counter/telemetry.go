package counter

import (
	"context"
	"errors"

	"github.com/subaru-pfs/seqno/internal/telemetry"
	"github.com/subaru-pfs/seqno/visit"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithTelemetry returns a [Counter] that adds telemetry to c.
//
// The returned counter implements [Peeker] if c does.
func WithTelemetry(
	c Counter,
	p trace.TracerProvider,
	m metric.MeterProvider,
	l log.LoggerProvider,
) Counter {
	r := telemetry.Provider{
		TracerProvider: p,
		MeterProvider:  m,
		LoggerProvider: l,
	}.Recorder(
		"github.com/subaru-pfs/seqno/counter",
		"counter",
		telemetry.Type("counter", c),
		telemetry.String("handle", telemetry.HandleID()),
	)

	return &instrumentedCounter{
		Target:    c,
		Telemetry: r,
		Allocations: r.Int64Counter(
			"allocations",
			metric.WithDescription("The number of visit IDs issued by the counter."),
			metric.WithUnit("{visit}"),
		),
		Exhaustions: r.Int64Counter(
			"exhaustions",
			metric.WithDescription("The number of times the counter refused to issue an ID because its range is exhausted."),
			metric.WithUnit("{operation}"),
		),
	}
}

type instrumentedCounter struct {
	Target    Counter
	Telemetry *telemetry.Recorder

	Allocations metric.Int64Counter
	Exhaustions metric.Int64Counter
}

func (c *instrumentedCounter) Next(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	ctx, span := c.Telemetry.StartSpan(
		ctx,
		"next",
		telemetry.String("epoch", e),
	)
	defer span.End()

	id, err := c.Target.Next(ctx, e)
	if err != nil {
		if errors.Is(err, visit.ErrRangeExhausted) {
			c.Exhaustions.Add(ctx, 1)
		}
		span.Error("could not issue visit ID", err)
		return 0, err
	}

	c.Allocations.Add(ctx, 1)
	span.SetAttributes(telemetry.Int("visit", id))
	span.Debug("issued visit ID")

	return id, nil
}

func (c *instrumentedCounter) Peek(ctx context.Context, e visit.Epoch) (visit.ID, error) {
	p, ok := c.Target.(Peeker)
	if !ok {
		return 0, errors.ErrUnsupported
	}

	ctx, span := c.Telemetry.StartSpan(
		ctx,
		"peek",
		telemetry.String("epoch", e),
	)
	defer span.End()

	id, err := p.Peek(ctx, e)
	if err != nil {
		span.Error("could not read next free visit ID", err)
		return 0, err
	}

	span.SetAttributes(telemetry.Int("visit", id))
	span.Debug("read next free visit ID")

	return id, nil
}
