package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ReadDirection is a measurement option that marks an I/O metric as a
	// read.
	ReadDirection = metric.WithAttributes(attribute.String("io.direction", "read"))

	// WriteDirection is a measurement option that marks an I/O metric as a
	// write.
	WriteDirection = metric.WithAttributes(attribute.String("io.direction", "write"))
)

// Int64Counter returns a new counter instrument. The name is prefixed with the
// recorder's subsystem name.
func (r *Recorder) Int64Counter(name string, options ...metric.Int64CounterOption) metric.Int64Counter {
	c, err := r.meter.Int64Counter(r.name+"."+name, options...)
	if err != nil {
		panic(err)
	}
	return c
}

// Int64UpDownCounter returns a new up/down counter instrument. The name is
// prefixed with the recorder's subsystem name.
func (r *Recorder) Int64UpDownCounter(name string, options ...metric.Int64UpDownCounterOption) metric.Int64UpDownCounter {
	c, err := r.meter.Int64UpDownCounter(r.name+"."+name, options...)
	if err != nil {
		panic(err)
	}
	return c
}

// Int64Histogram returns a new histogram instrument. The name is prefixed with
// the recorder's subsystem name.
func (r *Recorder) Int64Histogram(name string, options ...metric.Int64HistogramOption) metric.Int64Histogram {
	h, err := r.meter.Int64Histogram(r.name+"."+name, options...)
	if err != nil {
		panic(err)
	}
	return h
}
