package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistryChannelIsSingletonByName(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Channel("x")
	b := r.Channel("x")
	if a != b {
		t.Error("two calls to Channel(\"x\") returned different instances")
	}
	c := r.Channel("y")
	if a == c {
		t.Error("different names returned the same channel")
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	var got1, got2 []any
	var mu sync.Mutex

	c1 := NewConsumer(r, func(ctx context.Context, msg any) error {
		mu.Lock()
		got1 = append(got1, msg)
		mu.Unlock()
		return nil
	})
	c2 := NewConsumer(r, func(ctx context.Context, msg any) error {
		mu.Lock()
		got2 = append(got2, msg)
		mu.Unlock()
		return nil
	})
	c1.Subscribe("topic")
	c2.Subscribe("topic")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c1.Run(ctx)
	go c2.Run(ctx)
	defer c1.Stop()
	defer c2.Stop()

	r.Channel("topic").Publish("hello")

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := len(got1) == 1 && len(got2) == 1
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for delivery: got1=%v got2=%v", got1, got2)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)
	var count int64
	c := NewConsumer(r, func(ctx context.Context, msg any) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	c.Subscribe("topic")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	defer c.Stop()

	r.Channel("topic").Publish(1)
	time.Sleep(20 * time.Millisecond)

	c.Unsubscribe("topic")
	r.Channel("topic").Publish(2)
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt64(&count); got != 1 {
		t.Errorf("count = %d, want 1 (second publish after unsubscribe should not arrive)", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	c := NewConsumer(r, func(ctx context.Context, msg any) error { return nil })
	c.Subscribe("topic")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Stop()
	c.Stop() // must not panic
}

func TestBackgroundConsumerBoundsConcurrency(t *testing.T) {
	r := NewRegistry(nil)
	const capacity = 2
	var inFlight, maxObserved int64
	release := make(chan struct{})

	bc := NewBackgroundConsumer(r, capacity, func(ctx context.Context, msg any) error {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&maxObserved)
			if n <= old || atomic.CompareAndSwapInt64(&maxObserved, old, n) {
				break
			}
		}
		<-release
		atomic.AddInt64(&inFlight, -1)
		return nil
	})
	bc.Subscribe("jobs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bc.Run(ctx)

	for i := 0; i < 5; i++ {
		r.Channel("jobs").Publish(i)
	}
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt64(&maxObserved); got > capacity {
		t.Errorf("observed %d concurrent handlers, want <= %d", got, capacity)
	}
	close(release)
	bc.Stop()
}

// TestPublishNeverBlocksOnStalledConsumer proves the queue is genuinely
// unbounded: publishing far more messages than any fixed channel capacity
// would hold must still return immediately, with nothing ever draining it.
func TestPublishNeverBlocksOnStalledConsumer(t *testing.T) {
	r := NewRegistry(nil)
	c := NewConsumer(r, func(ctx context.Context, msg any) error { return nil })
	c.Subscribe("firehose")
	defer c.Stop()

	const messages = 10_000 // well past the old fixed channel capacity of 256
	done := make(chan struct{})
	go func() {
		ch := r.Channel("firehose")
		for i := 0; i < messages; i++ {
			ch.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no consumer draining the queue")
	}
}

func TestBackgroundConsumerStopWaitsForInFlight(t *testing.T) {
	r := NewRegistry(nil)
	done := make(chan struct{})
	bc := NewBackgroundConsumer(r, 1, func(ctx context.Context, msg any) error {
		time.Sleep(30 * time.Millisecond)
		close(done)
		return nil
	})
	bc.Subscribe("jobs")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bc.Run(ctx)

	r.Channel("jobs").Publish(1)
	time.Sleep(5 * time.Millisecond) // let Run pick it up before Stop races it
	bc.Stop()

	select {
	case <-done:
	default:
		t.Error("Stop returned before in-flight handler finished")
	}
}
