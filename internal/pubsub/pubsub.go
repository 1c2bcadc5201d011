// Package pubsub is the in-process broadcast fabric the report pipeline
// rides on: named channels, fan-out to subscribed consumers, and a
// bounded-concurrency worker variant for background handlers.
//
// A process-wide Registry maps channel name to *Channel so that two calls
// to Registry.Channel with the same name return the same object, matching
// the singleton-by-name behavior of the channel registry this fabric is
// modeled on. Delivery is at-least-once within the process lifetime and
// not persisted across restarts.
package pubsub

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Registry is a concurrency-safe name -> *Channel map. meter may be nil,
// which disables the publish/drop counters rather than panicking.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	publishCounter metric.Int64Counter
	dropCounter    metric.Int64Counter
}

// NewRegistry returns an empty, ready-to-use Registry. meter may be nil.
func NewRegistry(meter metric.Meter) *Registry {
	r := &Registry{channels: make(map[string]*Channel)}
	if meter != nil {
		if c, err := meter.Int64Counter("pubsub.publish.total"); err == nil {
			r.publishCounter = c
		}
		if c, err := meter.Int64Counter("pubsub.drop.total"); err == nil {
			r.dropCounter = c
		}
	}
	return r
}

// Channel returns the named channel, creating it on first access.
func (r *Registry) Channel(name string) *Channel {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch
	}
	ch = &Channel{name: name, reg: r}
	r.channels[name] = ch
	return ch
}

// Channel is a named broadcast endpoint. Publish delivers to a snapshot of
// currently subscribed consumers without blocking the publisher.
type Channel struct {
	name string
	reg  *Registry

	mu        sync.RWMutex
	consumers map[*Consumer]struct{}
}

// Name returns the channel's registry key.
func (c *Channel) Name() string { return c.name }

func (c *Channel) addConsumer(con *Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumers == nil {
		c.consumers = make(map[*Consumer]struct{})
	}
	c.consumers[con] = struct{}{}
}

func (c *Channel) removeConsumer(con *Consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consumers, con)
}

// Publish delivers msg to every consumer currently subscribed, each into
// its own unbounded queue. Publish never blocks on a slow consumer.
func (c *Channel) Publish(msg any) {
	if c.reg != nil && c.reg.publishCounter != nil {
		c.reg.publishCounter.Add(context.Background(), 1)
	}

	c.mu.RLock()
	targets := make([]*Consumer, 0, len(c.consumers))
	for con := range c.consumers {
		targets = append(targets, con)
	}
	c.mu.RUnlock()

	for _, con := range targets {
		con.enqueue(msg)
	}
}

// Handler processes one message delivered to a Consumer.
type Handler func(ctx context.Context, msg any) error

// Consumer owns a FIFO queue and a set of channel subscriptions. The queue
// is a growable slice behind a mutex, not a fixed-capacity channel: Publish
// must never block on a slow or stalled consumer, so enqueue always
// succeeds immediately (append under lock) and Run's dequeue loop blocks on
// a condition variable instead of channel capacity. Stop unsubscribes from
// every channel and marks the consumer done; Run still handles the
// messages already queued and then returns. Stop does not wait for Run or
// for a handler that is running.
type Consumer struct {
	registry *Registry
	handle   Handler
	logger   *log.Logger

	qmu   sync.Mutex
	cond  *sync.Cond
	queue []any

	done chan struct{}

	subMu sync.Mutex
	subs  map[*Channel]struct{}

	stopOnce sync.Once
}

// NewConsumer builds a Consumer whose Run loop invokes handle for each
// message it receives, in publish order, one at a time.
func NewConsumer(registry *Registry, handle Handler) *Consumer {
	c := &Consumer{
		registry: registry,
		handle:   handle,
		logger:   log.New(log.Writer(), "pubsub: ", log.LstdFlags),
		done:     make(chan struct{}),
		subs:     make(map[*Channel]struct{}),
	}
	c.cond = sync.NewCond(&c.qmu)
	return c
}

// enqueue appends msg to the tail of the queue and wakes the dequeue loop.
// It never blocks: a stalled or slow Run loop only makes the queue grow,
// it never pushes back on the publisher.
func (c *Consumer) enqueue(msg any) {
	c.qmu.Lock()
	select {
	case <-c.done:
		c.qmu.Unlock()
		if c.registry != nil && c.registry.dropCounter != nil {
			c.registry.dropCounter.Add(context.Background(), 1)
		}
		return
	default:
	}
	c.queue = append(c.queue, msg)
	c.qmu.Unlock()
	c.cond.Signal()
}

// dequeue blocks until a message is available or the consumer is stopped.
func (c *Consumer) dequeue() (any, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	for len(c.queue) == 0 {
		select {
		case <-c.done:
			return nil, false
		default:
		}
		c.cond.Wait()
	}
	msg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return msg, true
}

// Subscribe registers the consumer on each named channel.
func (c *Consumer) Subscribe(names ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, name := range names {
		ch := c.registry.Channel(name)
		ch.addConsumer(c)
		c.subs[ch] = struct{}{}
	}
}

// Unsubscribe removes the consumer from each named channel.
func (c *Consumer) Unsubscribe(names ...string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, name := range names {
		ch := c.registry.Channel(name)
		ch.removeConsumer(c)
		delete(c.subs, ch)
	}
}

func (c *Consumer) unsubscribeAll() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		ch.removeConsumer(c)
	}
	c.subs = make(map[*Channel]struct{})
}

// Run is the serial dequeue loop: take the next message, invoke the
// handler, repeat, until Stop is called or ctx is cancelled. A handler
// error is logged and the message is dropped, not retried.
func (c *Consumer) Run(ctx context.Context) {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-stopCh:
		}
	}()
	defer close(stopCh)

	for {
		msg, ok := c.dequeue()
		if !ok {
			return
		}
		if err := c.handle(ctx, msg); err != nil {
			c.logger.Printf("handler error: %v", err)
		}
	}
}

// Stop unsubscribes from every channel and terminates the Run loop. It is
// safe to call more than once.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.unsubscribeAll()
		close(c.done)
		c.cond.Broadcast()
	})
}

// BackgroundConsumer extends Consumer with a capacity-N semaphore: Run
// dequeues and spawns each handler invocation as its own goroutine, but
// blocks the dequeue loop once N handlers are already in flight. Handler
// failures never terminate the consumer.
type BackgroundConsumer struct {
	*Consumer
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewBackgroundConsumer builds a BackgroundConsumer with the given worker
// capacity. capacity must be >= 1.
func NewBackgroundConsumer(registry *Registry, capacity int, handle Handler) *BackgroundConsumer {
	if capacity < 1 {
		capacity = 1
	}
	bc := &BackgroundConsumer{
		sem: make(chan struct{}, capacity),
	}
	bc.Consumer = NewConsumer(registry, handle)
	return bc
}

// Run dequeues messages and spawns a bounded number of concurrent handler
// goroutines, blocking further dequeues once capacity is saturated.
func (bc *BackgroundConsumer) Run(ctx context.Context) {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			bc.Stop()
		case <-stopCh:
		}
	}()
	defer close(stopCh)

	for {
		msg, ok := bc.dequeue()
		if !ok {
			bc.wg.Wait()
			return
		}
		select {
		case bc.sem <- struct{}{}:
		case <-bc.done:
			bc.wg.Wait()
			return
		}
		bc.wg.Add(1)
		go func(m any) {
			defer bc.wg.Done()
			defer func() { <-bc.sem }()
			if err := bc.handle(ctx, m); err != nil {
				bc.logger.Printf("handler error: %v", err)
			}
		}(msg)
	}
}

// Stop unsubscribes from every channel, terminates the dequeue loop, and
// waits for in-flight handlers to finish.
func (bc *BackgroundConsumer) Stop() {
	bc.Consumer.Stop()
	bc.wg.Wait()
}
