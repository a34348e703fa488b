// Package asynchook decouples hook delivery from the cache's hot paths:
// events are queued and replayed to an inner Hooks on worker goroutines.
// The queue is bounded; events are dropped when it is full.
package asynchook

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/cachefill"
)

type Hooks struct {
	inner cachefill.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ cachefill.Hooks = (*Hooks)(nil)

func New(inner cachefill.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) Unavailable(op, k string)         { h.try(func() { h.inner.Unavailable(op, k) }) }
func (h *Hooks) SelfHeal(k, reason string)        { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) WriteDropped(k string, err error) { h.try(func() { h.inner.WriteDropped(k, err) }) }
func (h *Hooks) SetRejected(k string)             { h.try(func() { h.inner.SetRejected(k) }) }
func (h *Hooks) RefreshFailed(k string, retryIn time.Duration, err error) {
	h.try(func() { h.inner.RefreshFailed(k, retryIn, err) })
}
