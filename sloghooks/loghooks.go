// Package sloghooks is a Hooks implementation that writes events to a
// *slog.Logger, with per-event sampling so a flapping store or a failing
// producer cannot flood the log.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/cachefill"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	UnavailableEvery   uint64
	RefreshFailedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	unavailableCtr   atomic.Uint64
	refreshFailedCtr atomic.Uint64
}

var _ cachefill.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Unavailable(op, storageKey string) {
	if h.l == nil || !sample(h.opts.UnavailableEvery, &h.unavailableCtr) {
		return
	}
	h.l.Warn("cachefill: store unavailable",
		slog.String("op", op),
		slog.String("key", h.redact(storageKey)),
	)
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachefill: self-healed entry",
		slog.String("key", h.redact(storageKey)),
		slog.String("reason", reason),
	)
}

func (h *Hooks) WriteDropped(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("cachefill: populate write dropped",
		slog.String("key", h.redact(storageKey)),
		slog.Any("err", err),
	)
}

func (h *Hooks) SetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("cachefill: set rejected by provider",
		slog.String("key", h.redact(storageKey)),
	)
}

func (h *Hooks) RefreshFailed(storageKey string, retryIn time.Duration, err error) {
	if h.l == nil || !sample(h.opts.RefreshFailedEvery, &h.refreshFailedCtr) {
		return
	}
	h.l.Warn("cachefill: refresh run failed",
		slog.String("key", h.redact(storageKey)),
		slog.Duration("retry_in", retryIn),
		slog.Any("err", err),
	)
}
