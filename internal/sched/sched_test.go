package sched

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(slog.Default())

	if s == nil {
		t.Fatal("NewScheduler returned nil")
	}
	if s.cron == nil {
		t.Error("Scheduler cron should not be nil")
	}
	if s.tasks == nil {
		t.Error("Scheduler tasks map should not be nil")
	}
	if s.IsRunning() {
		t.Error("New scheduler should not be running")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(slog.Default())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.IsRunning() {
		t.Error("Scheduler should be running after Start")
	}

	// Start again is a no-op
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.IsRunning() {
		t.Error("Scheduler should not be running after Stop")
	}
}

func TestScheduler_AddIntervalTask(t *testing.T) {
	s := NewScheduler(slog.Default())

	var runs atomic.Int64
	err := s.AddIntervalTask("sweep", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("AddIntervalTask failed: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 || tasks[0] != "sweep" {
		t.Fatalf("ListTasks = %v, want [sweep]", tasks)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Error("interval task never ran")
	}
}

func TestScheduler_AddIntervalTask_ReplaceExisting(t *testing.T) {
	s := NewScheduler(slog.Default())

	task := func(ctx context.Context) error { return nil }

	if err := s.AddIntervalTask("task1", time.Hour, task); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}
	if err := s.AddIntervalTask("task1", 30*time.Minute, task); err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	if tasks := s.ListTasks(); len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_RemoveTask(t *testing.T) {
	s := NewScheduler(slog.Default())

	task := func(ctx context.Context) error { return nil }

	if err := s.AddIntervalTask("task1", time.Hour, task); err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	s.RemoveTask("task1")
	if tasks := s.ListTasks(); len(tasks) != 0 {
		t.Fatalf("Expected 0 tasks after remove, got %d", len(tasks))
	}

	// Removing a missing task is a no-op
	s.RemoveTask("missing")
}
