package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/abrantes/internal/domain/model"
)

func envelope(tabID int, ts int64) Envelope {
	return Envelope{
		TabID:    tabID,
		Record:   model.EventRecord{EventName: model.EventTrack, Timestamp: ts},
		Received: time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, envelope(1, 10)) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	e := <-q.Dequeue(ctx)
	if e.TabID != 1 || e.Record.Timestamp != 10 {
		t.Errorf("unexpected envelope %+v", e)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, envelope(1, 1)) || !q.Enqueue(ctx, envelope(1, 2)) {
		t.Fatal("expected enqueue to succeed")
	}

	// Full queue rejects without blocking
	if q.Enqueue(ctx, envelope(1, 3)) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()

	for ts := int64(1); ts <= 50; ts++ {
		if !q.Enqueue(ctx, envelope(3, ts)) {
			t.Fatalf("enqueue %d failed", ts)
		}
	}
	_ = q.Close()

	want := int64(1)
	for e := range q.Dequeue(ctx) {
		if e.Record.Timestamp != want {
			t.Fatalf("expected timestamp %d, got %d", want, e.Record.Timestamp)
		}
		want++
	}
	if want != 51 {
		t.Errorf("expected 50 envelopes, got %d", want-1)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context may still win the select when there is room, so
	// only the full case is deterministic.
	_ = q.Enqueue(context.Background(), envelope(1, 1))
	if q.Enqueue(ctx, envelope(1, 2)) {
		t.Error("expected enqueue to fail")
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, envelope(1, 1)) || !q.Enqueue(ctx, envelope(2, 2)) {
		t.Fatal("expected enqueue to succeed")
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
	if q.Enqueue(ctx, envelope(1, 3)) {
		t.Error("expected enqueue to fail after closing")
	}

	// Queued envelopes are still delivered, then the channel closes
	received := 0
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if received != 2 {
					t.Errorf("expected 2 drained envelopes, got %d", received)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			received++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
