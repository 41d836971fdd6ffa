package kv

import (
	"context"

	"github.com/subaru-pfs/seqno/internal/telemetry"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// WithTelemetry returns a [BinaryStore] that adds telemetry to s.
func WithTelemetry(
	s BinaryStore,
	p trace.TracerProvider,
	m metric.MeterProvider,
	l log.LoggerProvider,
) BinaryStore {
	return &instrumentedStore{
		Next: s,
		Telemetry: telemetry.Provider{
			TracerProvider: p,
			MeterProvider:  m,
			LoggerProvider: l,
		},
	}
}

// instrumentedStore is a decorator that adds instrumentation to a [BinaryStore].
type instrumentedStore struct {
	Next      BinaryStore
	Telemetry telemetry.Provider
}

// Open returns the keyspace with the given name.
func (s *instrumentedStore) Open(ctx context.Context, name string) (BinaryKeyspace, error) {
	r := s.Telemetry.Recorder(
		"github.com/subaru-pfs/seqno/kv",
		"keyspace",
		telemetry.Type("store", s.Next),
		telemetry.String("handle", telemetry.HandleID()),
		telemetry.String("name", name),
	)

	ctx, span := r.StartSpan(ctx, "open")
	defer span.End()

	next, err := s.Next.Open(ctx, name)
	if err != nil {
		span.Error("could not open keyspace", err)
		return nil, err
	}

	ks := &instrumentedKeyspace{
		Next:      next,
		Telemetry: r,
		OpenCount: r.Int64UpDownCounter(
			"open",
			metric.WithDescription("The number of keyspaces that are currently open."),
			metric.WithUnit("{keyspace}"),
		),
		ConflictCount: r.Int64Counter(
			"conflicts",
			metric.WithDescription("The number of times setting a value has failed due to an optimistic-concurrency conflict."),
			metric.WithUnit("{conflict}"),
		),
		MissCount: r.Int64Counter(
			"misses",
			metric.WithDescription("The number of times the value associated with a specific key was requested but not present in the keyspace."),
			metric.WithUnit("{operation}"),
		),
		ValueIO: r.Int64Counter(
			"value.io",
			metric.WithDescription("The cumulative size of the values that have been read and written."),
			metric.WithUnit("By"),
		),
	}

	ks.OpenCount.Add(ctx, 1)
	span.Debug("opened keyspace")

	return ks, nil
}

type instrumentedKeyspace struct {
	Next      BinaryKeyspace
	Telemetry *telemetry.Recorder

	OpenCount     metric.Int64UpDownCounter
	ConflictCount metric.Int64Counter
	MissCount     metric.Int64Counter
	ValueIO       metric.Int64Counter
}

func (ks *instrumentedKeyspace) Name() string {
	return ks.Next.Name()
}

func (ks *instrumentedKeyspace) Get(ctx context.Context, k []byte) ([]byte, Revision, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"get",
		telemetry.String("key", string(k)),
	)
	defer span.End()

	v, r, err := ks.Next.Get(ctx, k)
	if err != nil {
		span.Error("could not fetch value associated with key", err)
		return nil, 0, err
	}

	span.SetAttributes(
		telemetry.Bool("key_present", len(v) != 0),
		telemetry.Int("revision", r),
	)

	if len(v) == 0 {
		ks.MissCount.Add(ctx, 1)
		span.Debug("key is not present in keyspace")
	} else {
		ks.ValueIO.Add(ctx, int64(len(v)), telemetry.ReadDirection)
		span.Debug("fetched value associated with key")
	}

	return v, r, nil
}

func (ks *instrumentedKeyspace) Has(ctx context.Context, k []byte) (bool, error) {
	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		"has",
		telemetry.String("key", string(k)),
	)
	defer span.End()

	ok, err := ks.Next.Has(ctx, k)
	if err != nil {
		span.Error("could not check presence of key in keyspace", err)
		return false, err
	}

	span.SetAttributes(telemetry.Bool("key_present", ok))
	span.Debug("checked presence of key in keyspace")

	return ok, nil
}

func (ks *instrumentedKeyspace) Set(ctx context.Context, k, v []byte, r Revision) error {
	op := "set"
	if len(v) == 0 {
		op = "delete"
	}

	ctx, span := ks.Telemetry.StartSpan(
		ctx,
		op,
		telemetry.String("key", string(k)),
		telemetry.Int("revision", r),
	)
	defer span.End()

	if err := ks.Next.Set(ctx, k, v, r); err != nil {
		if IsConflict(err) {
			ks.ConflictCount.Add(ctx, 1)
			span.SetAttributes(telemetry.Bool("conflict", true))
			span.Debug("optimistic concurrency conflict")
		} else {
			span.Error("could not set key/value pair", err)
		}
		return err
	}

	ks.ValueIO.Add(ctx, int64(len(v)), telemetry.WriteDirection)
	span.Debug("set key/value pair")

	return nil
}

func (ks *instrumentedKeyspace) Range(ctx context.Context, fn BinaryRangeFunc) error {
	ctx, span := ks.Telemetry.StartSpan(ctx, "range")
	defer span.End()

	var count int64

	err := ks.Next.Range(
		ctx,
		func(ctx context.Context, k, v []byte, r Revision) (bool, error) {
			count++
			ks.ValueIO.Add(ctx, int64(len(v)), telemetry.ReadDirection)
			return fn(ctx, k, v, r)
		},
	)

	span.SetAttributes(telemetry.Int("pairs_read", count))

	if err != nil {
		span.Error("could not range over key/value pairs", err)
		return err
	}

	span.Debug("ranged over key/value pairs")

	return nil
}

func (ks *instrumentedKeyspace) Close() error {
	if ks.Next == nil {
		// Closing an already-closed keyspace is not an error, allowing Close()
		// to be called unconditionally by a defer statement.
		return nil
	}

	ctx, span := ks.Telemetry.StartSpan(context.Background(), "close")
	defer span.End()

	defer func() {
		ks.Next = nil
		ks.OpenCount.Add(ctx, -1)
	}()

	if err := ks.Next.Close(); err != nil {
		span.Error("could not close keyspace cleanly", err)
		return err
	}

	span.Debug("closed keyspace")

	return nil
}
