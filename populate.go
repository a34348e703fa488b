package cachefill

import (
	"context"
	"time"
)

// Fetch is the promise-mode populate: cache-check, then populate-on-miss.
//
// The initial read is strictly ordered before any write decision. A read
// failure (ErrUnavailable or StoreError) propagates without invoking the
// producer. Presence is what the provider reports, so zero values (0, false,
// "", an empty slice) are served as hits.
//
// Concurrent Fetch calls that observe the same miss each invoke the producer
// unless Options.DedupeFetch is set.
func (ca *cache[V]) Fetch(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (V, error) {
	var zero V
	v, ok, err := ca.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		return v, nil
	}
	if ca.flight != nil {
		out, err, _ := ca.flight.Do(ca.storageKey(key), func() (any, error) {
			v, err := ca.produceAndStore(ctx, key, ttl, produce)
			return v, err
		})
		if err != nil {
			return zero, err
		}
		return out.(V), nil
	}
	return ca.produceAndStore(ctx, key, ttl, produce)
}

// IO returns the split promise-mode surface for one key: Get replays Fetch,
// Update forces a produce-and-write without the cache check.
func (ca *cache[V]) IO(key string, ttl time.Duration, produce Producer[V]) IO[V] {
	return IO[V]{
		Get: func(ctx context.Context) (V, error) {
			return ca.Fetch(ctx, key, ttl, produce)
		},
		Update: func(ctx context.Context) (V, error) {
			return ca.produceAndStore(ctx, key, ttl, produce)
		},
	}
}

// produceAndStore invokes the producer exactly once and writes the result.
// The write is best-effort relative to the caller: a failed write loses only
// the cache copy, the produced value is still returned.
func (ca *cache[V]) produceAndStore(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (V, error) {
	v, err := produce(ctx)
	if err != nil {
		var zero V
		return zero, &ProducerError{Key: key, Cause: err}
	}
	if werr := ca.Set(ctx, key, v, ttl); werr != nil {
		ca.log.Warn("populate write dropped", Fields{"key": key, "err": werr})
		ca.hooks.WriteDropped(ca.storageKey(key), werr)
	}
	return v, nil
}
