package cachefill

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule is the interval-mode populate. For each policy set it starts an
// independent loop over key; both policies may run together. The returned
// getter does a plain store read and never touches the producer.
//
// Loops run until Close. Nothing a loop does can fail a caller: producer and
// write errors are logged with the retry delay chosen and absorbed.
func (ca *cache[V]) Schedule(key string, ttl time.Duration, produce Producer[V], policy RefreshPolicy) (Getter[V], error) {
	if produce == nil {
		return nil, fmt.Errorf("cachefill: producer is required")
	}
	if ca.loopCtx.Err() != nil {
		return nil, fmt.Errorf("cachefill: cache is closed")
	}
	if policy.Timeout == nil && policy.Timing == nil {
		return nil, fmt.Errorf("cachefill: refresh policy is empty")
	}
	if policy.Timeout != nil && policy.Timeout.SuccessDelay <= 0 {
		return nil, fmt.Errorf("cachefill: timeout policy needs a success delay")
	}
	if policy.Timing != nil {
		if policy.Timing.Schedule == "" {
			return nil, fmt.Errorf("cachefill: timing policy needs a schedule")
		}
		if policy.Timing.ErrorDelay <= 0 {
			return nil, fmt.Errorf("cachefill: timing policy needs an error delay")
		}
	}

	getter := func(ctx context.Context) (V, bool, error) {
		return ca.Get(ctx, key)
	}
	if !ca.enabled {
		// nothing to populate; the getter reports misses
		return getter, nil
	}

	if policy.Timing != nil {
		pol := *policy.Timing
		run := func() { ca.runWithRetry(key, ttl, produce, pol.ErrorDelay) }
		// register the cron job first so a bad expression fails Schedule
		// before anything starts
		if err := ca.addCron(pol.Schedule, run); err != nil {
			return nil, fmt.Errorf("cachefill: timing schedule %q: %w", pol.Schedule, err)
		}
		// one run immediately at schedule time, independent of the cron ticks
		ca.loopWg.Add(1)
		go func() {
			defer ca.loopWg.Done()
			run()
		}()
	}

	if policy.Timeout != nil {
		pol := *policy.Timeout
		if pol.ErrorDelay <= 0 {
			pol.ErrorDelay = pol.SuccessDelay
		}
		ca.loopWg.Add(1)
		go ca.timeoutLoop(key, ttl, produce, pol)
	}

	return getter, nil
}

// timeoutLoop is the fixed-delay loop: run immediately, then forever wait
// SuccessDelay after a success or ErrorDelay after a failure. Runs for one
// key are serialized by construction; the next run is scheduled only after
// the current one settles.
func (ca *cache[V]) timeoutLoop(key string, ttl time.Duration, produce Producer[V], pol TimeoutPolicy) {
	defer ca.loopWg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
		case <-ca.loopCtx.Done():
			return
		}
		delay := pol.SuccessDelay
		if err := ca.runRefresh(key, ttl, produce); err != nil {
			delay = pol.ErrorDelay
			ca.log.Warn("refresh run failed", Fields{"key": key, "retry_in": delay, "err": err})
			ca.hooks.RefreshFailed(ca.storageKey(key), delay, err)
		}
		timer.Reset(delay)
	}
}

// runWithRetry is one timing-policy run: produce-and-write, and on failure
// keep retrying after errorDelay until a run succeeds or the cache closes.
// Cron ticks start their own chain and are not serialized against a chain
// already in flight, so two runs for the same key can overlap.
func (ca *cache[V]) runWithRetry(key string, ttl time.Duration, produce Producer[V], errorDelay time.Duration) {
	for {
		err := ca.runRefresh(key, ttl, produce)
		if err == nil {
			return
		}
		ca.log.Warn("refresh run failed", Fields{"key": key, "retry_in": errorDelay, "err": err})
		ca.hooks.RefreshFailed(ca.storageKey(key), errorDelay, err)

		timer := time.NewTimer(errorDelay)
		select {
		case <-timer.C:
		case <-ca.loopCtx.Done():
			timer.Stop()
			return
		}
	}
}

// runRefresh is one produce-then-write cycle of a refresh loop.
func (ca *cache[V]) runRefresh(key string, ttl time.Duration, produce Producer[V]) error {
	v, err := produce(ca.loopCtx)
	if err != nil {
		return &ProducerError{Key: key, Cause: err}
	}
	return ca.Set(ca.loopCtx, key, v, ttl)
}

// addCron registers run with the shared cron runner, starting it on first use.
func (ca *cache[V]) addCron(spec string, run func()) error {
	ca.cronMu.Lock()
	defer ca.cronMu.Unlock()
	if ca.cron == nil {
		ca.cron = cron.New()
		ca.cron.Start()
	}
	_, err := ca.cron.AddFunc(spec, run)
	return err
}
