package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"first attempt", time.Second, 1, time.Second},
		{"second attempt", time.Second, 2, 2 * time.Second},
		{"third attempt", time.Second, 3, 4 * time.Second},
		{"zero attempt clamps to first", time.Second, 0, time.Second},
		{"custom base", 500 * time.Millisecond, 2, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BackoffDelay(tt.base, tt.attempt))
		})
	}
}

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 3, cfg.DefaultRetryLimit)
}

func TestDefaultWorkerConfig(t *testing.T) {
	cfg := DefaultWorkerConfig("emails")
	assert.Equal(t, "emails", cfg.Name)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 100, cfg.DispatchPerSecond)
}

func TestTruncateError(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, truncateError(short))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateError(string(long)), 500)
}

// stubQueue records completions and failures for worker tests
type stubQueue struct {
	mu        sync.Mutex
	entries   []*Entry
	completed []string
	failed    []string
}

func (s *stubQueue) Dequeue(_ context.Context, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(s.entries) {
		n = len(s.entries)
	}
	claimed := s.entries[:n]
	s.entries = s.entries[n:]
	return claimed, nil
}

func (s *stubQueue) MarkCompleted(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, entry.JobKey)
	return nil
}

func (s *stubQueue) MarkFailed(_ context.Context, entry *Entry, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, entry.JobKey)
	return nil
}

func (s *stubQueue) push(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *stubQueue) snapshot() (completed, failed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...), append([]string(nil), s.failed...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerDispatchesEntries(t *testing.T) {
	queue := &stubQueue{entries: []*Entry{
		{ID: "1", JobKey: "job-ok"},
		{ID: "2", JobKey: "job-fail"},
	}}

	worker := newWorker(queue, WorkerConfig{
		Name:         "test",
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	}, testLogger(), func(_ context.Context, entry *Entry) error {
		if entry.JobKey == "job-fail" {
			return errors.New("transport down")
		}
		return nil
	})

	require.NoError(t, worker.Start(context.Background()))
	assert.True(t, worker.IsRunning())

	require.Eventually(t, func() bool {
		completed, failed := queue.snapshot()
		return len(completed) == 1 && len(failed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	completed, failed := queue.snapshot()
	assert.Equal(t, []string{"job-ok"}, completed)
	assert.Equal(t, []string{"job-fail"}, failed)

	metrics := worker.Metrics()
	assert.Equal(t, int64(2), metrics.Processed)
	assert.Equal(t, int64(1), metrics.Succeeded)
	assert.Equal(t, int64(1), metrics.Failed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))
	assert.False(t, worker.IsRunning())
}

func TestWorkerOutlivesStartContext(t *testing.T) {
	queue := &stubQueue{}
	worker := newWorker(queue, WorkerConfig{
		Name:         "boot",
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	}, testLogger(), func(_ context.Context, _ *Entry) error {
		return nil
	})

	// Lifecycle hooks release their context once startup completes; the
	// pool must keep polling after that
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.Start(ctx))
	cancel()

	queue.push(&Entry{ID: "1", JobKey: "job-after-boot"})

	require.Eventually(t, func() bool {
		completed, _ := queue.snapshot()
		return len(completed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, worker.IsRunning())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, worker.Stop(stopCtx))
}

func TestWorkerConcurrencyBound(t *testing.T) {
	entries := make([]*Entry, 10)
	for i := range entries {
		entries[i] = &Entry{ID: string(rune('a' + i)), JobKey: "job"}
	}
	queue := &stubQueue{entries: entries}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	worker := newWorker(queue, WorkerConfig{
		Name:         "bounded",
		Concurrency:  3,
		PollInterval: time.Millisecond,
	}, testLogger(), func(_ context.Context, _ *Entry) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	require.NoError(t, worker.Start(context.Background()))

	require.Eventually(t, func() bool {
		completed, _ := queue.snapshot()
		return len(completed) == 10
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, 3)
	assert.GreaterOrEqual(t, maxInFlight, 1)
}

func TestWorkerStartIsIdempotent(t *testing.T) {
	queue := &stubQueue{}
	worker := newWorker(queue, DefaultWorkerConfig("idem"), testLogger(), func(_ context.Context, _ *Entry) error {
		return nil
	})

	require.NoError(t, worker.Start(context.Background()))
	require.NoError(t, worker.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))
	require.NoError(t, worker.Stop(ctx))
}
