package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WorkerConfig contains configuration for the worker pool
type WorkerConfig struct {
	// Name is a descriptive name for the pool (for logging and metrics)
	Name string
	// Concurrency is the number of entries processed in parallel (default: 5)
	Concurrency int
	// PollInterval is how often to poll for ready entries (default: 1s)
	PollInterval time.Duration
	// DispatchPerSecond is a pool-wide safety throttle (default: 100)
	DispatchPerSecond int
}

// DefaultWorkerConfig returns a WorkerConfig with the standard defaults
func DefaultWorkerConfig(name string) WorkerConfig {
	return WorkerConfig{
		Name:              name,
		Concurrency:       5,
		PollInterval:      time.Second,
		DispatchPerSecond: 100,
	}
}

// ProcessFunc handles one claimed entry. A nil return acknowledges the entry
// (it is removed from the queue); an error surfaces to the queue's
// transport-retry machinery.
type ProcessFunc func(ctx context.Context, entry *Entry) error

// consumerQueue is the slice of Queue the pool needs; narrowed for tests
type consumerQueue interface {
	Dequeue(ctx context.Context, limit int) ([]*Entry, error)
	MarkCompleted(ctx context.Context, entry *Entry) error
	MarkFailed(ctx context.Context, entry *Entry, entryErr error) error
}

// Worker is a bounded-concurrency pool consuming the delay queue.
// Entries are claimed in ready-at order; up to Concurrency dispatches run in
// parallel, with a pool-wide dispatch-rate throttle on top.
type Worker struct {
	queue     consumerQueue
	config    WorkerConfig
	log       *slog.Logger
	process   ProcessFunc
	limiter   *rate.Limiter
	sem       chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	cancelRun context.CancelFunc
	running   bool
	mu        sync.Mutex
	inflight  sync.WaitGroup

	// Metrics
	processedCount int64
	successCount   int64
	failureCount   int64
	metricsMu      sync.RWMutex
}

// NewWorker creates a new worker pool
func NewWorker(queue *Queue, config WorkerConfig, log *slog.Logger, process ProcessFunc) *Worker {
	return newWorker(queue, config, log, process)
}

func newWorker(queue consumerQueue, config WorkerConfig, log *slog.Logger, process ProcessFunc) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.DispatchPerSecond <= 0 {
		config.DispatchPerSecond = 100
	}

	return &Worker{
		queue:     queue,
		config:    config,
		log:       log.With(slog.String("worker", config.Name)),
		process:   process,
		limiter:   rate.NewLimiter(rate.Limit(config.DispatchPerSecond), config.DispatchPerSecond),
		sem:       make(chan struct{}, config.Concurrency),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start begins the polling loop. The loop runs on a pool-owned context, not
// the startup context: lifecycle hooks release their context once boot
// completes, and the loop must outlive it. Shutdown goes through Stop.
func (w *Worker) Start(_ context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(context.Background())
	w.cancelRun = cancel
	w.mu.Unlock()

	w.log.Info("worker pool starting",
		slog.Int("concurrency", w.config.Concurrency),
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("dispatch_per_second", w.config.DispatchPerSecond),
	)

	go w.run(runCtx)

	return nil
}

// Stop gracefully stops the pool; in-flight dispatches finish first
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancelRun
	close(w.stopCh)
	w.mu.Unlock()

	w.log.Debug("waiting for worker pool to stop...")

	select {
	case <-w.stoppedCh:
		w.log.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("worker pool stop timeout, forcing shutdown")
	}

	if cancel != nil {
		cancel()
	}

	return nil
}

// run is the main polling loop
func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.inflight.Wait()
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.log.Warn("poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

// poll claims up to the number of free slots and dispatches each entry
func (w *Worker) poll(ctx context.Context) error {
	free := cap(w.sem) - len(w.sem)
	if free == 0 {
		return nil
	}

	entries, err := w.queue.Dequeue(ctx, free)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		w.sem <- struct{}{}
		w.inflight.Add(1)
		go w.dispatch(ctx, entry)
	}

	return nil
}

// dispatch processes a single entry inside a pool slot
func (w *Worker) dispatch(ctx context.Context, entry *Entry) {
	defer func() {
		<-w.sem
		w.inflight.Done()
	}()

	if err := w.process(ctx, entry); err != nil {
		w.incrementFailure()
		dispatchesTotal.WithLabelValues(w.config.Name, "error").Inc()

		if markErr := w.queue.MarkFailed(ctx, entry, err); markErr != nil {
			w.log.Error("failed to mark entry as failed",
				slog.String("job_key", entry.JobKey),
				slog.String("error", markErr.Error()),
			)
		}
		return
	}

	w.incrementSuccess()
	dispatchesTotal.WithLabelValues(w.config.Name, "ok").Inc()

	if err := w.queue.MarkCompleted(ctx, entry); err != nil {
		w.log.Error("failed to mark entry as completed",
			slog.String("job_key", entry.JobKey),
			slog.String("error", err.Error()),
		)
	}
}

// Metrics returns current pool metrics
func (w *Worker) Metrics() WorkerMetrics {
	w.metricsMu.RLock()
	defer w.metricsMu.RUnlock()

	return WorkerMetrics{
		Processed: w.processedCount,
		Succeeded: w.successCount,
		Failed:    w.failureCount,
	}
}

func (w *Worker) incrementSuccess() {
	w.metricsMu.Lock()
	w.processedCount++
	w.successCount++
	w.metricsMu.Unlock()
}

func (w *Worker) incrementFailure() {
	w.metricsMu.Lock()
	w.processedCount++
	w.failureCount++
	w.metricsMu.Unlock()
}

// IsRunning returns whether the pool is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WorkerMetrics contains pool metrics
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
