package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTryAddRunsQueuedJob(t *testing.T) {
	s := New()
	s.fastInterval = time.Millisecond
	s.slowInterval = time.Hour

	var ran int32
	done := make(chan struct{})
	s.OnComplete(func(name string, err error) {
		close(done)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if !s.TryAdd("test", func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}) {
		t.Fatal("TryAdd returned false for an empty queue")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued job did not complete in time")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("job body did not run")
	}
}

func TestFastJobRunsRepeatedly(t *testing.T) {
	s := New()
	s.fastInterval = time.Millisecond
	s.slowInterval = time.Hour

	var count int32
	s.AddFastJob("count", func(ctx context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	if atomic.LoadInt32(&count) < 2 {
		t.Fatalf("expected the fast job to tick more than once, got %d", count)
	}
}

func TestTryAddFullQueueReturnsFalse(t *testing.T) {
	s := New()
	// Fill the queue without a running consumer.
	for i := 0; i < cap(s.queue); i++ {
		if !s.TryAdd("filler", func(ctx context.Context) error { return nil }) {
			t.Fatalf("queue rejected job %d before reaching capacity", i)
		}
	}
	if s.TryAdd("overflow", func(ctx context.Context) error { return nil }) {
		t.Fatal("expected TryAdd to reject once the queue is full")
	}
}
