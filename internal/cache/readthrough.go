package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ReadThrough fills a Cache from a loader, running at most one load per key
// at a time. Reset bumps a generation counter so loads that started before
// the reset do not repopulate stale values.
type ReadThrough[T any] struct {
	cache Cache[T]
	group singleflight.Group
	gen   atomic.Uint64
}

func NewReadThrough[T any](c Cache[T]) *ReadThrough[T] {
	return &ReadThrough[T]{cache: c}
}

func (r *ReadThrough[T]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	gen := r.gen.Load()
	v, err, _ := r.group.Do(key, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		if r.gen.Load() == gen {
			r.cache.Set(key, val)
		}
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (r *ReadThrough[T]) Reset() {
	r.gen.Add(1)
	r.cache.Reset()
}

func (r *ReadThrough[T]) Size() int { return r.cache.Size() }
