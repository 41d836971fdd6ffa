package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
)

// Span is a wrapper around an OpenTelemetry span that also emits log records
// on behalf of the recorder that started it.
type Span struct {
	ctx      context.Context
	span     trace.Span
	recorder *Recorder
	attrs    []Attr
}

// StartSpan starts a new span. The span name is prefixed with the recorder's
// subsystem name.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	ctx, span := r.tracer.Start(
		ctx,
		r.name+"."+name,
		trace.WithAttributes(asAttrKeyValues(r.attrs)...),
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)

	return ctx, &Span{
		ctx:      ctx,
		span:     span,
		recorder: r,
		attrs:    attrs,
	}
}

// End ends the span.
func (s *Span) End() {
	s.span.End()
}

// SetAttributes adds attributes to the span, and to any log records emitted
// via the span from this point on.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(asAttrKeyValues(attrs)...)
	s.attrs = append(s.attrs, attrs...)
}

// Debug logs a debug message.
func (s *Span) Debug(message string, attrs ...Attr) {
	s.log(log.SeverityDebug, message, nil, attrs)
}

// Info logs an informational message.
func (s *Span) Info(message string, attrs ...Attr) {
	s.log(log.SeverityInfo, message, nil, attrs)
}

// Warn logs a warning about a non-fatal error. It does not mark the span as
// failed.
func (s *Span) Warn(message string, err error, attrs ...Attr) {
	s.log(log.SeverityWarn, message, err, attrs)
	s.span.RecordError(err)
}

// Error logs an error message, marks the span as failed and increments the
// recorder's error counter.
func (s *Span) Error(message string, err error, attrs ...Attr) {
	s.log(log.SeverityError, message, err, attrs)
	s.recorder.errors.Add(s.ctx, 1)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.RecordError(err)
}

func (s *Span) log(
	severity log.Severity,
	message string,
	err error,
	attrs []Attr,
) {
	s.span.AddEvent(
		message,
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)

	logger := s.recorder.logger

	if !logger.Enabled(
		s.ctx,
		log.EnabledParameters{
			Severity: severity,
		},
	) {
		return
	}

	var rec log.Record
	rec.SetSeverity(severity)
	rec.SetBody(log.StringValue(message))
	rec.AddAttributes(asLogKeyValues(s.recorder.attrs)...)
	rec.AddAttributes(asLogKeyValues(s.attrs)...)
	rec.AddAttributes(asLogKeyValues(attrs)...)

	if err != nil {
		rec.AddAttributes(log.String("error", err.Error()))
	}

	logger.Emit(s.ctx, rec)
}
