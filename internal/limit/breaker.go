// Package limit bounds concurrent tool calls per MCP server. The stdio
// client supports overlapping calls, but a runaway prompt loop must not be
// able to pile unbounded requests onto one subprocess.
package limit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eel-hour/Unified-Security-Assistant/internal/metrics"
)

var (
	// ErrQueueFull is returned when the wait queue is full.
	ErrQueueFull = errors.New("breaker queue full: cannot accept more tool calls")
	// ErrQueueTimeout is returned when waiting in queue times out.
	ErrQueueTimeout = errors.New("breaker queue timeout: waited too long for capacity")
)

// Breaker is a concurrency-limiting gate for one MCP server.
type Breaker struct {
	server        string
	maxConcurrent int32
	maxQueue      int32
	queueTimeout  time.Duration

	mu       sync.Mutex
	active   int32
	waiting  int32
	waitChan chan struct{}
}

// Config holds breaker configuration.
type Config struct {
	MaxConcurrent int32
	MaxQueueSize  int32
	QueueTimeout  time.Duration
}

// DefaultConfig returns sensible defaults for an interactive console: a
// handful of overlapping calls per server, short queue.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		MaxQueueSize:  8,
		QueueTimeout:  10 * time.Second,
	}
}

// New creates a breaker for the named server.
func New(server string, cfg Config) *Breaker {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxQueueSize < 0 {
		cfg.MaxQueueSize = 0
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 10 * time.Second
	}

	return &Breaker{
		server:        server,
		maxConcurrent: cfg.MaxConcurrent,
		maxQueue:      cfg.MaxQueueSize,
		queueTimeout:  cfg.QueueTimeout,
		waitChan:      make(chan struct{}, cfg.MaxConcurrent+cfg.MaxQueueSize),
	}
}

// Acquire tries to acquire a slot for one tool call. It blocks if at
// capacity (up to the queue size), and fails if the queue is full or the
// wait exceeds the queue timeout.
func (b *Breaker) Acquire(ctx context.Context) error {
	b.mu.Lock()

	if b.active < b.maxConcurrent {
		b.active++
		b.updateMetrics()
		b.mu.Unlock()
		return nil
	}

	if b.waiting >= b.maxQueue {
		b.mu.Unlock()
		metrics.RecordBreakerRejection(b.server, "queue_full")
		return ErrQueueFull
	}

	b.waiting++
	b.updateMetrics()
	b.mu.Unlock()

	timer := time.NewTimer(b.queueTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		b.mu.Lock()
		b.waiting--
		b.updateMetrics()
		b.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		b.mu.Lock()
		b.waiting--
		b.updateMetrics()
		b.mu.Unlock()
		metrics.RecordBreakerRejection(b.server, "timeout")
		return ErrQueueTimeout
	case <-b.waitChan:
		b.mu.Lock()
		b.waiting--
		b.active++
		b.updateMetrics()
		b.mu.Unlock()
		return nil
	}
}

// Release returns a slot to the pool.
func (b *Breaker) Release() {
	b.mu.Lock()
	b.active--
	b.updateMetrics()

	if b.waiting > 0 {
		select {
		case b.waitChan <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// updateMetrics publishes the breaker gauges. Must be called holding the lock.
func (b *Breaker) updateMetrics() {
	metrics.SetBreakerActive(b.server, int(b.active))
	metrics.SetBreakerWaiting(b.server, int(b.waiting))
}

// Stats holds a snapshot of breaker state.
type Stats struct {
	Active      int32
	Waiting     int32
	MaxCapacity int32
	MaxQueue    int32
}

// Stats returns current statistics.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Active:      b.active,
		Waiting:     b.waiting,
		MaxCapacity: b.maxConcurrent,
		MaxQueue:    b.maxQueue,
	}
}
