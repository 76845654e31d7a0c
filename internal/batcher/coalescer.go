// Package batcher coalesces calls issued close together into batches keyed by
// (endpoint, method).
//
// The first item enqueued for a key starts a short timer. When it fires, or
// when the bucket reaches its capacity, every queued item for the key is handed
// to the dispatch function in enqueue order. Items for different keys are never
// mixed.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default limits
const (
	DefaultMaxSize = 32
	DefaultMaxWait = time.Millisecond
)

// ErrClosed is returned by Enqueue after Close
var ErrClosed = errors.New("batcher: closed")

// Endpoint identifies a logical remote service
type Endpoint struct {
	Name string
	Port int
}

// String returns name:port
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Name, e.Port)
}

// Key identifies a bucket
type Key struct {
	Endpoint Endpoint
	Method   string
}

// DispatchFunc receives one flushed batch. It runs on its own goroutine.
type DispatchFunc[T any] func(key Key, items []T)

// Options configures a Coalescer
type Options struct {
	MaxSize int           // items per batch; <= 0 means DefaultMaxSize
	MaxWait time.Duration // coalescing window; < 0 means DefaultMaxWait
}

// bucket accumulates items for one key
type bucket[T any] struct {
	items []T
	timer *time.Timer
}

// take detaches the queued items and stops the timer
func (b *bucket[T]) take() []T {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	items := b.items
	b.items = nil
	return items
}

// Coalescer groups items per Key and hands them to a DispatchFunc
type Coalescer[T any] struct {
	maxSize  int
	maxWait  time.Duration
	dispatch DispatchFunc[T]
	buckets  map[Key]*bucket[T]
	closed   bool
	inflight sync.WaitGroup
	logger   zerolog.Logger
	mu       sync.Mutex
}

// New creates a new Coalescer
func New[T any](opts Options, dispatch DispatchFunc[T], logger zerolog.Logger) *Coalescer[T] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.MaxWait < 0 {
		opts.MaxWait = DefaultMaxWait
	}

	return &Coalescer[T]{
		maxSize:  opts.MaxSize,
		maxWait:  opts.MaxWait,
		dispatch: dispatch,
		buckets:  make(map[Key]*bucket[T]),
		logger:   logger.With().Str("component", "batcher").Logger(),
	}
}

// Enqueue adds an item to the key's bucket. It never waits for a dispatch.
func (c *Coalescer[T]) Enqueue(key Key, item T) error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	b := c.buckets[key]
	if b == nil {
		b = &bucket[T]{items: make([]T, 0, c.maxSize)}
		c.buckets[key] = b
	}
	b.items = append(b.items, item)

	var full []T
	if len(b.items) >= c.maxSize {
		full = b.take()
		delete(c.buckets, key)
		c.inflight.Add(1)
	} else if b.timer == nil {
		b.timer = time.AfterFunc(c.maxWait, func() {
			c.flush(key, b)
		})
	}

	c.mu.Unlock()

	if full != nil {
		c.logger.Debug().
			Str("endpoint", key.Endpoint.String()).
			Str("method", key.Method).
			Int("items", len(full)).
			Msg("bucket full, flushing")
		go c.run(key, full)
	}

	return nil
}

// flush dispatches whatever b still holds, unless b was already detached
func (c *Coalescer[T]) flush(key Key, b *bucket[T]) {
	c.mu.Lock()
	if c.buckets[key] != b {
		c.mu.Unlock()
		return
	}
	items := b.take()
	delete(c.buckets, key)
	if len(items) == 0 {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	c.logger.Debug().
		Str("endpoint", key.Endpoint.String()).
		Str("method", key.Method).
		Int("items", len(items)).
		Msg("window elapsed, flushing")

	c.run(key, items)
}

func (c *Coalescer[T]) run(key Key, items []T) {
	defer c.inflight.Done()
	c.dispatch(key, items)
}

// Pending returns the number of queued, not yet flushed items for key
func (c *Coalescer[T]) Pending(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b := c.buckets[key]; b != nil {
		return len(b.items)
	}
	return 0
}

// Close stops all timers, flushes pending buckets and waits for running
// dispatches to return or ctx to expire.
func (c *Coalescer[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	pending := make(map[Key][]T, len(c.buckets))
	for key, b := range c.buckets {
		if items := b.take(); len(items) > 0 {
			pending[key] = items
			c.inflight.Add(1)
		}
	}
	c.buckets = make(map[Key]*bucket[T])
	c.mu.Unlock()

	for key, items := range pending {
		go c.run(key, items)
	}

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info().Int("flushed", len(pending)).Msg("batcher closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batcher close: %w", ctx.Err())
	}
}
