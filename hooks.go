package cachefill

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read or write short-circuited because the liveness probe failed.
	// op ∈ {"read", "write"}
	Unavailable(op, storageKey string)

	// A stored entry failed to decode and was deleted on read.
	SelfHeal(storageKey, reason string)

	// A populate write failed after the producer succeeded.
	// The caller still received the produced value; only the cache copy is lost.
	WriteDropped(storageKey string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	SetRejected(storageKey string)

	// A recurring run failed; the loop retries after retryIn.
	RefreshFailed(storageKey string, retryIn time.Duration, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Unavailable(string, string)                 {}
func (NopHooks) SelfHeal(string, string)                    {}
func (NopHooks) WriteDropped(string, error)                 {}
func (NopHooks) SetRejected(string)                         {}
func (NopHooks) RefreshFailed(string, time.Duration, error) {}
