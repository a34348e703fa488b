// Package cachefill decouples computing a value (a Producer, typically an
// expensive or remote call) from reading it (a cheap cache lookup) on top of
// any key/value store with TTL support.
//
// Components:
//   - Provider: byte store with TTL and a liveness probe (e.g. Redis,
//     Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - Cache[V]: the population policy, in two modes.
//
// Promise mode (read-through cache-aside):
//
//	v, err := cache.Fetch(ctx, "profile:42", 0, loadProfile)
//
// Fetch serves the cached value when present, otherwise invokes the producer
// once, writes the result and returns it. A failed cache write after a
// successful produce never fails the caller. IO splits the same policy into
// an explicit Get/Update pair for callers that need to force a refresh.
//
// Interval mode (refresh-ahead):
//
//	get, err := cache.Schedule("weather", 0, fetchWeather, cachefill.RefreshPolicy{
//	    Timing: &cachefill.TimingPolicy{Schedule: "*/10 * * * *", ErrorDelay: 5 * time.Second},
//	})
//
// Schedule runs the producer on a perpetual loop (fixed delays, cron ticks,
// or both), pushes results into the store, and returns a getter that only
// ever reads. Loop failures are logged and retried; they never reach a caller.
//
// Every read and write is gated by the provider's liveness probe, evaluated
// fresh on each call. When the probe fails, operations return ErrUnavailable
// without touching the store.
package cachefill
