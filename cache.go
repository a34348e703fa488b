package cachefill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/cachefill/codec"
	pr "github.com/unkn0wn-root/cachefill/provider"
)

const defaultTTL = 10 * time.Minute

type cache[V any] struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[V]
	log            Logger
	hooks          Hooks
	enabled        bool
	defaultTTL     time.Duration
	computeSetCost SetCostFunc

	// non-nil only when Options.DedupeFetch is set
	flight *singleflight.Group

	// refresh loops: all loops select on loopCtx and are awaited on Close
	loopCtx    context.Context
	loopCancel context.CancelFunc
	loopWg     sync.WaitGroup

	// cron runner, started lazily by the first timing-policy Schedule
	cronMu sync.Mutex
	cron   *cron.Cron

	closeOnce sync.Once
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("cachefill: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("cachefill: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("cachefill: namespace is required")
	}

	ca := &cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
	}

	// defaults
	ca.log = coalesce[Logger](opts.Logger, NopLogger{})
	ca.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	ca.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)

	if opts.ComputeSetCost != nil {
		ca.computeSetCost = opts.ComputeSetCost
	} else {
		ca.computeSetCost = func(_ string, _ []byte) int64 { return 1 }
	}

	if opts.DedupeFetch {
		ca.flight = new(singleflight.Group)
	}

	ca.loopCtx, ca.loopCancel = context.WithCancel(context.Background())
	return ca, nil
}

func (ca *cache[V]) Enabled() bool { return ca.enabled }

// Available probes the provider's connection state. Never memoized: a probe
// that succeeded a moment ago says nothing about this call.
func (ca *cache[V]) Available(ctx context.Context) bool {
	return ca.provider.Ping(ctx) == nil
}

// Close stops all refresh loops and the cron runner, waits for in-flight
// runs to settle, then closes the provider.
func (ca *cache[V]) Close(ctx context.Context) error {
	ca.closeOnce.Do(func() {
		ca.loopCancel()
		ca.cronMu.Lock()
		cr := ca.cron
		ca.cron = nil
		ca.cronMu.Unlock()
		if cr != nil {
			<-cr.Stop().Done()
		}
		ca.loopWg.Wait()
	})
	return ca.provider.Close(ctx)
}

func (ca *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !ca.enabled {
		return zero, false, nil
	}
	k := ca.storageKey(key)
	if !ca.Available(ctx) {
		ca.hooks.Unavailable("read", k)
		return zero, false, ErrUnavailable
	}
	raw, ok, err := ca.provider.Get(ctx, k)
	if err != nil {
		return zero, false, &StoreError{Op: "read", Key: key, Cause: err}
	}
	if !ok {
		return zero, false, nil
	}
	v, err := ca.codec.Decode(raw)
	if err != nil {
		// self-heal: drop the undecodable entry, report a miss so the next
		// population event rewrites it
		_ = ca.provider.Del(ctx, k)
		ca.hooks.SelfHeal(k, "decode")
		ca.log.Warn("dropped undecodable entry", Fields{"key": key, "err": err})
		return zero, false, nil
	}
	return v, true, nil
}

func (ca *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if !ca.enabled {
		return nil
	}
	if ttl == 0 {
		ttl = ca.defaultTTL
	}
	k := ca.storageKey(key)
	if !ca.Available(ctx) {
		ca.hooks.Unavailable("write", k)
		return ErrUnavailable
	}
	raw, err := ca.codec.Encode(value)
	if err != nil {
		return &StoreError{Op: "write", Key: key, Cause: err}
	}
	ok, err := ca.provider.Set(ctx, k, raw, ca.computeSetCost(k, raw), ttl)
	if err != nil {
		return &StoreError{Op: "write", Key: key, Cause: err}
	}
	if !ok {
		ca.log.Debug("set rejected by provider (pressure)", Fields{"key": key})
		ca.hooks.SetRejected(k)
	}
	return nil
}

func (ca *cache[V]) storageKey(userKey string) string {
	// isolate by namespace
	return "fill:" + ca.ns + ":" + userKey
}
