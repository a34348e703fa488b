package cachefill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type refreshHooks struct {
	NopHooks
	mu     sync.Mutex
	delays []time.Duration
}

func (h *refreshHooks) RefreshFailed(_ string, retryIn time.Duration, _ error) {
	h.mu.Lock()
	h.delays = append(h.delays, retryIn)
	h.mu.Unlock()
}

func (h *refreshHooks) recorded() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.delays))
	copy(out, h.delays)
	return out
}

func TestScheduleValidation(t *testing.T) {
	ctx := context.Background()
	cc := newStringCache(t, newMemProvider(), nil)
	defer cc.Close(ctx)

	ok := func(context.Context) (string, error) { return "v", nil }

	if _, err := cc.Schedule("k", 0, nil, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: time.Second}}); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if _, err := cc.Schedule("k", 0, ok, RefreshPolicy{}); err == nil {
		t.Fatal("expected error for empty policy")
	}
	if _, err := cc.Schedule("k", 0, ok, RefreshPolicy{Timeout: &TimeoutPolicy{}}); err == nil {
		t.Fatal("expected error for timeout policy without success delay")
	}
	if _, err := cc.Schedule("k", 0, ok, RefreshPolicy{Timing: &TimingPolicy{ErrorDelay: time.Second}}); err == nil {
		t.Fatal("expected error for timing policy without schedule")
	}
	if _, err := cc.Schedule("k", 0, ok, RefreshPolicy{Timing: &TimingPolicy{Schedule: "@every 1h"}}); err == nil {
		t.Fatal("expected error for timing policy without error delay")
	}
	if _, err := cc.Schedule("k", 0, ok, RefreshPolicy{Timing: &TimingPolicy{Schedule: "not a cron", ErrorDelay: time.Second}}); err == nil {
		t.Fatal("expected error for unparseable schedule")
	}
}

// TestTimeoutLoopPopulates: the fixed-delay loop runs immediately and keeps
// pushing fresh results into the store.
func TestTimeoutLoopPopulates(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newStringCache(t, mp, nil)
	defer cc.Close(ctx)

	var calls atomic.Int32
	get, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "run", nil
	}, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: 10 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		v, ok, err := get(ctx)
		return err == nil && ok && v == "run"
	})
	// the loop reschedules itself after every success
	waitFor(t, time.Second, func() bool { return calls.Load() >= 3 })
}

// TestTimeoutLoopRetriesWithErrorDelay: a failed run reschedules after
// ErrorDelay and the key holds the successful value once a run succeeds.
func TestTimeoutLoopRetriesWithErrorDelay(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &refreshHooks{}
	cc := newStringCache(t, mp, func(o *Options[string]) { o.Hooks = hooks })
	defer cc.Close(ctx)

	var calls atomic.Int32
	get, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: 5 * time.Millisecond, ErrorDelay: 15 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		v, ok, err := get(ctx)
		return err == nil && ok && v == "ok"
	})

	delays := hooks.recorded()
	if len(delays) == 0 || delays[0] != 15*time.Millisecond {
		t.Fatalf("want first retry after the error delay (15ms), got %v", delays)
	}
}

// TestTimeoutLoopErrorDelayFallsBack: with no ErrorDelay set, a failed run
// reschedules after SuccessDelay.
func TestTimeoutLoopErrorDelayFallsBack(t *testing.T) {
	ctx := context.Background()
	hooks := &refreshHooks{}
	cc := newStringCache(t, newMemProvider(), func(o *Options[string]) { o.Hooks = hooks })
	defer cc.Close(ctx)

	var calls atomic.Int32
	_, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: 12 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(hooks.recorded()) >= 1 })
	if d := hooks.recorded()[0]; d != 12*time.Millisecond {
		t.Fatalf("want fallback to success delay (12ms), got %v", d)
	}
}

// TestTimingPolicyImmediateRunAndRetry mirrors the canonical scenario:
// schedule a weather fetch on a cron cadence with an error-only retry delay.
// The first run fires at schedule time; failures chain retries after
// ErrorDelay until one succeeds, independent of the cron ticks.
func TestTimingPolicyImmediateRunAndRetry(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	hooks := &refreshHooks{}
	cc := newStringCache(t, mp, func(o *Options[string]) { o.Hooks = hooks })
	defer cc.Close(ctx)

	var calls atomic.Int32
	get, err := cc.Schedule("weather", 0, func(context.Context) (string, error) {
		if calls.Add(1) <= 2 {
			return "", errors.New("upstream down")
		}
		return "sunny", nil
	}, RefreshPolicy{Timing: &TimingPolicy{Schedule: "@every 1h", ErrorDelay: 10 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		v, ok, err := get(ctx)
		return err == nil && ok && v == "sunny"
	})

	delays := hooks.recorded()
	if len(delays) != 2 {
		t.Fatalf("want 2 recorded retries, got %v", delays)
	}
	for _, d := range delays {
		if d != 10*time.Millisecond {
			t.Fatalf("retry should use the error delay, got %v", d)
		}
	}
	// the cadence is the cron's; success must not schedule another run
	n := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != n {
		t.Fatal("no runs expected between cron ticks after a success")
	}
}

// TestTimingPolicyCronTicks: the registered cron job keeps re-running the
// producer on every tick.
func TestTimingPolicyCronTicks(t *testing.T) {
	ctx := context.Background()
	cc := newStringCache(t, newMemProvider(), nil)
	defer cc.Close(ctx)

	var calls atomic.Int32
	_, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "tick", nil
	}, RefreshPolicy{Timing: &TimingPolicy{Schedule: "@every 25ms", ErrorDelay: time.Second}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// immediate run plus at least two cron ticks
	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 3 })
}

// TestScheduleGetterIsPureRead: the returned getter only ever reads; it never
// invokes the producer, and it propagates read failures like any plain read.
func TestScheduleGetterIsPureRead(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	cc := newStringCache(t, mp, nil)
	defer cc.Close(ctx)

	var calls atomic.Int32
	get, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}, RefreshPolicy{Timing: &TimingPolicy{Schedule: "@every 1h", ErrorDelay: time.Second}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool { return calls.Load() == 1 })

	for i := 0; i < 10; i++ {
		if _, _, err := get(ctx); err != nil {
			t.Fatalf("getter read: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("getter must not produce; producer ran %d times", calls.Load())
	}

	mp.setPingErr(errors.New("down"))
	if _, _, err := get(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("getter should propagate ErrUnavailable, got %v", err)
	}
}

// TestCloseStopsRefreshLoops: Close cancels the loops; no runs happen after.
func TestCloseStopsRefreshLoops(t *testing.T) {
	ctx := context.Background()
	cc := newStringCache(t, newMemProvider(), nil)

	var calls atomic.Int32
	_, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: 5 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
	if err := cc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	n := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != n {
		t.Fatal("loop kept running after Close")
	}
}

func TestScheduleOnDisabledCache(t *testing.T) {
	ctx := context.Background()
	cc := newStringCache(t, newMemProvider(), func(o *Options[string]) { o.Disabled = true })
	defer cc.Close(ctx)

	var calls atomic.Int32
	get, err := cc.Schedule("k", 0, func(context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}, RefreshPolicy{Timeout: &TimeoutPolicy{SuccessDelay: 5 * time.Millisecond}})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("disabled cache must not start refresh loops")
	}
	if _, ok, err := get(ctx); err != nil || ok {
		t.Fatalf("disabled getter should miss cleanly, got ok=%v err=%v", ok, err)
	}
}
