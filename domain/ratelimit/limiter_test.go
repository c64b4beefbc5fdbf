package ratelimit

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWindowFor(t *testing.T) {
	// 2026-01-01 00:00:00 UTC
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	w := windowFor(base)
	assert.Equal(t, base.UnixMilli()/3_600_000, w)

	// Same window for any instant inside the hour
	assert.Equal(t, w, windowFor(base.Add(time.Minute)))
	assert.Equal(t, w, windowFor(base.Add(59*time.Minute+59*time.Second)))

	// Next hour is the next window
	assert.Equal(t, w+1, windowFor(base.Add(time.Hour)))
}

func TestUntilNextWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Hour, untilNextWindow(base))
	assert.Equal(t, 30*time.Minute, untilNextWindow(base.Add(30*time.Minute)))
	assert.Equal(t, time.Second, untilNextWindow(base.Add(59*time.Minute+59*time.Second)))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "ratelimit:sender:abc:123", senderKey("abc", 123))
	assert.Equal(t, "ratelimit:global:123", globalKey(123))
}

func TestDeny_RetryAfter(t *testing.T) {
	// Deny at 30 minutes into the hour: retry after the remaining 30 minutes
	// plus the one-second pad
	now := time.Date(2026, 1, 1, 12, 30, 0, 0, time.UTC)

	l := &Limiter{
		limits: Limits{PerSender: 50, Global: 200},
		log:    testLogger(),
	}

	d := l.deny(ScopeSender, "sender-1", now, windowFor(now), 50)
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeSender, d.Scope)
	assert.Equal(t, 30*time.Minute+time.Second, d.RetryAfter)
}
