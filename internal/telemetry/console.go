package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// NewConsoleLoggerProvider returns a logger provider that writes each record
// with a severity of at least threshold to w as a line of JSON.
//
// The caller must shut the provider down when it is no longer needed.
func NewConsoleLoggerProvider(w io.Writer, threshold log.Severity) (*sdklog.LoggerProvider, error) {
	exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, err
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(
			&severityFilter{
				Processor: sdklog.NewSimpleProcessor(exp),
				Min:       threshold,
			},
		),
	), nil
}

// severityFilter is a [sdklog.Processor] that drops records below a minimum
// severity.
type severityFilter struct {
	sdklog.Processor
	Min log.Severity
}

func (f *severityFilter) OnEmit(ctx context.Context, r *sdklog.Record) error {
	if r.Severity() < f.Min {
		return nil
	}
	return f.Processor.OnEmit(ctx, r)
}
