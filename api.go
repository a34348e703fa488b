package cachefill

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/cachefill/codec"
	pr "github.com/unkn0wn-root/cachefill/provider"
)

// Producer computes a value. Producers are invoked at most once per
// population event and carry no identity beyond the closure itself.
type Producer[V any] func(ctx context.Context) (V, error)

// Getter reads an already-populated value from the store. ok=false means the
// key is absent. Getters never invoke a producer.
type Getter[V any] func(ctx context.Context) (V, bool, error)

// IO is the split surface of promise mode: Get replays the read-through
// policy, Update unconditionally invokes the producer and writes the result,
// bypassing the cache check.
type IO[V any] struct {
	Get    func(ctx context.Context) (V, error)
	Update func(ctx context.Context) (V, error)
}

// TimeoutPolicy reruns the producer forever with a fixed delay between runs,
// picked by the outcome of the previous run.
type TimeoutPolicy struct {
	// SuccessDelay is the wait after a successful run. Required.
	SuccessDelay time.Duration
	// ErrorDelay is the wait after a failed run. 0 falls back to SuccessDelay.
	ErrorDelay time.Duration
}

// TimingPolicy reruns the producer on a cron cadence, with an independent
// error-only retry delay. The schedule expression is handed verbatim to the
// cron collaborator (robfig/cron, standard 5-field specs plus @every/@hourly
// style descriptors); cachefill does not parse it.
type TimingPolicy struct {
	// Schedule is the cron expression driving the nominal cadence. Required.
	Schedule string
	// ErrorDelay is the wait before retrying a failed run. Required. Retries
	// chain until a run succeeds; cron ticks fire independently of an
	// in-flight retry chain, so overlapping runs for the same key are possible.
	ErrorDelay time.Duration
}

// RefreshPolicy selects the interval-mode loops for Schedule. At least one
// policy must be set; both may be set, and then run as independent loops over
// the same key.
type RefreshPolicy struct {
	Timeout *TimeoutPolicy
	Timing  *TimingPolicy
}

// SetCostFunc computes the cost passed to Provider.Set (used by cost-aware
// stores such as Ristretto).
type SetCostFunc func(storageKey string, raw []byte) int64

// Cache is the population policy over a Provider. V is the caller's value
// type; serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	// Fetch is promise mode: return the cached value when present, otherwise
	// invoke produce once, write the result (best-effort) and return it.
	// ttl=0 uses the cache default.
	Fetch(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (V, error)

	// IO is promise mode with an explicit get/update split.
	IO(key string, ttl time.Duration, produce Producer[V]) IO[V]

	// Schedule is interval mode: start the loops selected by policy and
	// return a getter that performs a plain store read of key. The loops run
	// until Close; their failures are logged and retried, never surfaced.
	Schedule(key string, ttl time.Duration, produce Producer[V], policy RefreshPolicy) (Getter[V], error)

	// Get reads key from the store. Availability-gated; ok=false on miss.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set writes key with the given TTL (0 uses the cache default).
	// Availability-gated.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Available reports the provider's liveness, probed fresh.
	Available(ctx context.Context) bool

	Enabled() bool
	Close(ctx context.Context) error
}

// Options tune the behavior of the cache.
// Only Namespace, Provider and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions, e.g. "weather", "profile"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger     Logger        // if nil, NopLogger is used
	Hooks      Hooks         // if nil, NopHooks is used
	DefaultTTL time.Duration // 0 => 10m

	// DedupeFetch lets concurrent Fetch misses for the same key join a single
	// outstanding producer call instead of each invoking the producer.
	// Default false: concurrent misses race (thundering herd), matching the
	// plain cache-aside contract.
	DedupeFetch bool

	Disabled       bool        // default false (enabled)
	ComputeSetCost SetCostFunc // default 1
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
