package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunsQueuedTasks(t *testing.T) {
	scheduler := NewScheduler()

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		scheduler.Schedule(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	if err := scheduler.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if ran.Load() != 3 {
		t.Errorf("expected 3 tasks to run, got %d", ran.Load())
	}
}

func TestScheduler_LateSchedule(t *testing.T) {
	scheduler := NewScheduler()

	started := make(chan struct{})
	release := make(chan struct{})
	scheduler.Schedule(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- scheduler.Run(context.Background()) }()
	<-started

	lateRan := make(chan struct{})
	scheduler.Schedule(func(ctx context.Context) error {
		close(lateRan)
		return nil
	})

	select {
	case <-lateRan:
	case <-time.After(time.Second):
		t.Fatalf("late task did not run")
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("Run returned error: %v", err)
	}
}

func TestScheduler_ErrorCancelsSiblings(t *testing.T) {
	scheduler := NewScheduler()
	boom := errors.New("boom")

	scheduler.Schedule(func(ctx context.Context) error {
		return boom
	})
	scheduler.Schedule(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	err := scheduler.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected task error, got %v", err)
	}
}
