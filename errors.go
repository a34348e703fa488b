package cachefill

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by reads and writes when the provider's liveness
// probe reports the store as not connected or not ready. The probe runs fresh
// on every call; no underlying I/O is attempted once it fails.
var ErrUnavailable = errors.New("cachefill: store unavailable")

// StoreError reports a provider failure for a reason other than availability
// (transport error, encode failure on write).
type StoreError struct {
	Op    string // "read" or "write"
	Key   string // caller's key, without the namespace prefix
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cachefill: %s %q: %v", e.Op, e.Key, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// ProducerError reports a failure from the caller-supplied producer.
type ProducerError struct {
	Key   string
	Cause error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("cachefill: produce %q: %v", e.Key, e.Cause)
}

func (e *ProducerError) Unwrap() error { return e.Cause }
