// Package telemetrytest provides an in-memory OpenTelemetry log provider for
// asserting on emitted log records in tests.
package telemetrytest

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
)

// Entry is a captured log record.
type Entry struct {
	Scope    string
	Severity log.Severity
	Message  string
	Attrs    map[string]string
}

// LoggerProvider is a [log.LoggerProvider] that captures every emitted record.
type LoggerProvider struct {
	embedded.LoggerProvider

	m       sync.Mutex
	entries []Entry
}

// Logger returns a logger that records to p.
func (p *LoggerProvider) Logger(name string, _ ...log.LoggerOption) log.Logger {
	return &logger{provider: p, scope: name}
}

// Entries returns the captured records, in the order they were emitted.
func (p *LoggerProvider) Entries() []Entry {
	p.m.Lock()
	defer p.m.Unlock()

	return append([]Entry(nil), p.entries...)
}

// Count returns the number of captured records with the given severity.
func (p *LoggerProvider) Count(severity log.Severity) int {
	n := 0
	for _, e := range p.Entries() {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

type logger struct {
	embedded.Logger

	provider *LoggerProvider
	scope    string
}

func (l *logger) Emit(_ context.Context, rec log.Record) {
	e := Entry{
		Scope:    l.scope,
		Severity: rec.Severity(),
		Message:  rec.Body().AsString(),
		Attrs:    map[string]string{},
	}

	rec.WalkAttributes(func(kv log.KeyValue) bool {
		e.Attrs[kv.Key] = kv.Value.String()
		return true
	})

	l.provider.m.Lock()
	defer l.provider.m.Unlock()

	l.provider.entries = append(l.provider.entries, e)
}

func (l *logger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}
