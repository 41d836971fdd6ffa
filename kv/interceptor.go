package kv

import (
	"context"
	"sync/atomic"
)

// Interceptor defines functions that are invoked around keyspace operations.
//
// It is primarily used to inject failures, such as a storage outage, when
// testing components that depend on a [Store].
type Interceptor[K, V any] struct {
	beforeOpen atomic.Pointer[func(string) error]
	beforeGet  atomic.Pointer[func(string, K) error]
	beforeSet  atomic.Pointer[func(string, K, V) error]
	afterSet   atomic.Pointer[func(string, K, V) error]
}

// BeforeOpen sets the function that is invoked before a [Keyspace] is opened.
func (i *Interceptor[K, V]) BeforeOpen(fn func(name string) error) {
	if fn == nil {
		i.beforeOpen.Store(nil)
		return
	}
	i.beforeOpen.Store(&fn)
}

// BeforeGet sets the function that is invoked before a value is read.
func (i *Interceptor[K, V]) BeforeGet(fn func(keyspace string, k K) error) {
	if fn == nil {
		i.beforeGet.Store(nil)
		return
	}
	i.beforeGet.Store(&fn)
}

// BeforeSet sets the function that is invoked before a key/value pair is set.
func (i *Interceptor[K, V]) BeforeSet(fn func(keyspace string, k K, v V) error) {
	if fn == nil {
		i.beforeSet.Store(nil)
		return
	}
	i.beforeSet.Store(&fn)
}

// AfterSet sets the function that is invoked after a key/value pair is set.
//
// An error returned by fn is reported to the caller even though the value has
// already been written.
func (i *Interceptor[K, V]) AfterSet(fn func(keyspace string, k K, v V) error) {
	if fn == nil {
		i.afterSet.Store(nil)
		return
	}
	i.afterSet.Store(&fn)
}

// WithInterceptor returns a [Store] that invokes the functions defined by the
// given [Interceptor] when performing operations on s.
func WithInterceptor[K, V any](s Store[K, V], in *Interceptor[K, V]) Store[K, V] {
	if in == nil {
		return s
	}

	return &interceptedStore[K, V]{
		Next:        s,
		Interceptor: in,
	}
}

func load[F any](i *atomic.Pointer[F]) (F, bool) {
	if fn := i.Load(); fn != nil {
		return *fn, true
	}
	var zero F
	return zero, false
}

type interceptedStore[K, V any] struct {
	Next        Store[K, V]
	Interceptor *Interceptor[K, V]
}

func (s *interceptedStore[K, V]) Open(ctx context.Context, name string) (Keyspace[K, V], error) {
	if fn, ok := load(&s.Interceptor.beforeOpen); ok {
		if err := fn(name); err != nil {
			return nil, err
		}
	}

	next, err := s.Next.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	return &interceptedKeyspace[K, V]{
		Next:        next,
		Interceptor: s.Interceptor,
	}, nil
}

type interceptedKeyspace[K, V any] struct {
	Next        Keyspace[K, V]
	Interceptor *Interceptor[K, V]
}

func (ks *interceptedKeyspace[K, V]) Name() string {
	return ks.Next.Name()
}

func (ks *interceptedKeyspace[K, V]) Get(ctx context.Context, k K) (V, Revision, error) {
	if fn, ok := load(&ks.Interceptor.beforeGet); ok {
		if err := fn(ks.Next.Name(), k); err != nil {
			var zero V
			return zero, 0, err
		}
	}

	return ks.Next.Get(ctx, k)
}

func (ks *interceptedKeyspace[K, V]) Has(ctx context.Context, k K) (bool, error) {
	return ks.Next.Has(ctx, k)
}

func (ks *interceptedKeyspace[K, V]) Set(ctx context.Context, k K, v V, r Revision) error {
	if fn, ok := load(&ks.Interceptor.beforeSet); ok {
		if err := fn(ks.Next.Name(), k, v); err != nil {
			return err
		}
	}

	if err := ks.Next.Set(ctx, k, v, r); err != nil {
		return err
	}

	if fn, ok := load(&ks.Interceptor.afterSet); ok {
		if err := fn(ks.Next.Name(), k, v); err != nil {
			return err
		}
	}

	return nil
}

func (ks *interceptedKeyspace[K, V]) Range(ctx context.Context, fn RangeFunc[K, V]) error {
	return ks.Next.Range(ctx, fn)
}

func (ks *interceptedKeyspace[K, V]) Close() error {
	return ks.Next.Close()
}
