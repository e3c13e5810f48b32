package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/evpulse/internal/domain/model"
)

func job(id string) model.Job {
	return model.Job{DeviceID: id}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, job("ev-1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	j, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("expected next to succeed, got %v", err)
	}
	if j.DeviceID != "ev-1" {
		t.Errorf("expected ev-1, got %v", j.DeviceID)
	}
	if j.Enqueued.IsZero() {
		t.Error("expected enqueue time to be stamped")
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	if q.Capacity() != 2 {
		t.Fatalf("expected capacity 2, got %d", q.Capacity())
	}

	if err := q.TryEnqueue(job("a")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.TryEnqueue(job("b")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.TryEnqueue(job("c")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, job("c")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected blocked enqueue to time out, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_BlockingEnqueueResumes(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()
	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, job("b")) }()

	if _, err := q.Next(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected blocked enqueue to succeed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue did not resume")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(16))
	ctx := context.Background()
	producers, perProducer := 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				if err := q.Enqueue(ctx, job(fmt.Sprintf("ev-%d-%d", id, j))); err != nil {
					t.Errorf("enqueue failed: %v", err)
					return
				}
			}
		}(i)
	}

	var mu sync.Mutex
	seen := make(map[string]bool)
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				j, err := q.Next(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[j.DeviceID] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	consumers.Wait()

	if len(seen) != producers*perProducer {
		t.Errorf("expected %d jobs, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatal(err)
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, job("b")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// queued work survives Close
	if j, err := q.Next(ctx); err != nil || j.DeviceID != "a" {
		t.Errorf("expected queued job after close, got %v %v", j.DeviceID, err)
	}
	if _, err := q.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed once drained, got %v", err)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_CloseReleasesBlockedSender(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()
	if err := q.Enqueue(ctx, job("a")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, job("b")) }()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = q.Close()
		close(closed)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked sender was not released")
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
}
