// Package ratelimit enforces hourly send caps using fixed windows backed by
// Redis counters.
//
// Counters are keyed by the hour window H = floor(now_ms / 3_600_000), so all
// processes agree on window boundaries. Keys expire after two hours; past
// windows clean themselves up.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/outbox-sh/outbox/pkg/clock"
	"github.com/outbox-sh/outbox/pkg/logger"
)

const (
	windowSize = time.Hour
	keyTTL     = 2 * time.Hour
	// retryAfterPad is added to the time-until-next-window so a deferred
	// dispatch lands safely inside the fresh window
	retryAfterPad = time.Second
)

// Limits holds the hourly caps
type Limits struct {
	// PerSender is the per-sender hourly cap
	PerSender int
	// Global is the fleet-wide hourly cap
	Global int
}

// Scope identifies which cap a decision applies to
type Scope string

const (
	ScopeSender Scope = "sender"
	ScopeGlobal Scope = "global"
)

// Decision is the result of a rate-limit check
type Decision struct {
	Allowed bool
	// Scope names the exhausted cap when Allowed is false
	Scope Scope
	// RetryAfter is how long to wait before the next window opens
	RetryAfter time.Duration
}

// Status is the full rate-limit state for a sender in the current window
type Status struct {
	SenderID    string `json:"senderId"`
	Window      int64  `json:"window"`
	SenderCount int64  `json:"senderCount"`
	SenderLimit int    `json:"senderLimit"`
	GlobalCount int64  `json:"globalCount"`
	GlobalLimit int    `json:"globalLimit"`
	ResetsInMs  int64  `json:"resetsInMs"`
}

// Limiter checks and records hourly send counts
type Limiter struct {
	rdb    *redis.Client
	clock  clock.Clock
	limits Limits
	log    *slog.Logger
}

// NewLimiter creates a new rate limiter
func NewLimiter(rdb *redis.Client, clk clock.Clock, limits Limits, log *slog.Logger) *Limiter {
	return &Limiter{
		rdb:    rdb,
		clock:  clk,
		limits: limits,
		log:    log.With(logger.Scope("ratelimit")),
	}
}

// Check reports whether a send for the sender is allowed right now. The
// per-sender cap is checked before the global one, so a single saturated
// sender is reported as such even when the global cap is also full.
//
// Check does not consume quota; call Increment after the send succeeds.
func (l *Limiter) Check(ctx context.Context, senderID string) (*Decision, error) {
	now := l.clock.Now()
	window := windowFor(now)

	pipe := l.rdb.Pipeline()
	senderGet := pipe.Get(ctx, senderKey(senderID, window))
	globalGet := pipe.Get(ctx, globalKey(window))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read rate counters: %w", err)
	}

	senderCount := counterValue(senderGet)
	globalCount := counterValue(globalGet)

	if senderCount >= int64(l.limits.PerSender) {
		return l.deny(ScopeSender, senderID, now, window, senderCount), nil
	}
	if globalCount >= int64(l.limits.Global) {
		return l.deny(ScopeGlobal, senderID, now, window, globalCount), nil
	}

	return &Decision{Allowed: true}, nil
}

// Increment records one sent email against both the sender and global
// counters for the current window. Both keys get a two-hour expiry so stale
// windows are dropped by Redis.
func (l *Limiter) Increment(ctx context.Context, senderID string) error {
	window := windowFor(l.clock.Now())

	pipe := l.rdb.TxPipeline()
	pipe.Incr(ctx, senderKey(senderID, window))
	pipe.Expire(ctx, senderKey(senderID, window), keyTTL)
	pipe.Incr(ctx, globalKey(window))
	pipe.Expire(ctx, globalKey(window), keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment rate counters: %w", err)
	}

	return nil
}

// Status returns the current-window counters for a sender
func (l *Limiter) Status(ctx context.Context, senderID string) (*Status, error) {
	now := l.clock.Now()
	window := windowFor(now)

	pipe := l.rdb.Pipeline()
	senderGet := pipe.Get(ctx, senderKey(senderID, window))
	globalGet := pipe.Get(ctx, globalKey(window))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("read rate counters: %w", err)
	}

	senderCount := counterValue(senderGet)
	globalCount := counterValue(globalGet)

	return &Status{
		SenderID:    senderID,
		Window:      window,
		SenderCount: senderCount,
		SenderLimit: l.limits.PerSender,
		GlobalCount: globalCount,
		GlobalLimit: l.limits.Global,
		ResetsInMs:  untilNextWindow(now).Milliseconds(),
	}, nil
}

func (l *Limiter) deny(scope Scope, senderID string, now time.Time, window, count int64) *Decision {
	retryAfter := untilNextWindow(now) + retryAfterPad

	l.log.Debug("rate limit hit",
		slog.String("scope", string(scope)),
		slog.String("sender_id", senderID),
		slog.Int64("window", window),
		slog.Int64("count", count),
		slog.Duration("retry_after", retryAfter),
	)

	return &Decision{
		Allowed:    false,
		Scope:      scope,
		RetryAfter: retryAfter,
	}
}

// windowFor returns the hour-window index for t
func windowFor(t time.Time) int64 {
	return t.UnixMilli() / windowSize.Milliseconds()
}

// untilNextWindow returns the time remaining in the current hour window
func untilNextWindow(t time.Time) time.Duration {
	nowMs := t.UnixMilli()
	nextMs := (windowFor(t) + 1) * windowSize.Milliseconds()
	return time.Duration(nextMs-nowMs) * time.Millisecond
}

func senderKey(senderID string, window int64) string {
	return fmt.Sprintf("ratelimit:sender:%s:%d", senderID, window)
}

func globalKey(window int64) string {
	return fmt.Sprintf("ratelimit:global:%d", window)
}

// counterValue reads a pipelined GET as an integer; missing keys count zero
func counterValue(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}

