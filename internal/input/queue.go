// Package input collects user commands from concurrent producers (the
// terminal, the HTTP control API) for the single-threaded playback loop.
package input

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/NekoSaan/h264Player/internal/metrics"
	"github.com/NekoSaan/h264Player/internal/transport"
)

var (
	// ErrQueueFull indicates the loop has not drained the queue in time
	ErrQueueFull = errors.New("input queue full")

	// ErrQueueClosed indicates the playback session has ended
	ErrQueueClosed = errors.New("input queue closed")

	// ErrRateLimited indicates a producer is sending faster than a person types
	ErrRateLimited = errors.New("input rate limited")
)

// Origins of events, used as a metrics label.
const (
	OriginKeyboard = "keyboard"
	OriginHTTP     = "http"
)

// DefaultQueueSize is used when NewQueue is given a non-positive size.
const DefaultQueueSize = 64

// Source is polled by the playback loop once per iteration.
type Source interface {
	// Poll returns the next pending event without blocking.
	Poll() (transport.Event, bool)
}

// Queue is a bounded FIFO of events. Push may be called from any
// goroutine; Poll is called by the loop.
type Queue struct {
	mu     sync.Mutex
	events []transport.Event
	size   int

	limiter *rate.Limiter
	closed  atomic.Bool
	dropped atomic.Int64
}

var _ Source = (*Queue)(nil)

// NewQueue creates a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		events:  make([]transport.Event, 0, size),
		size:    size,
		limiter: rate.NewLimiter(rate.Limit(100), 32), // 100 events/sec, burst 32
	}
}

// Push enqueues ev. A Quit is never refused while the queue is open: when
// the queue is full it replaces the oldest event.
func (q *Queue) Push(ev transport.Event, origin string) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if ev != transport.Quit && !q.limiter.Allow() {
		q.dropped.Add(1)
		return ErrRateLimited
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.size {
		if ev != transport.Quit {
			q.dropped.Add(1)
			return ErrQueueFull
		}
		q.events = q.events[1:]
		q.dropped.Add(1)
	}
	q.events = append(q.events, ev)
	metrics.RecordInputEvent(ev.String(), origin)
	return nil
}

// Poll implements Source.
func (q *Queue) Poll() (transport.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return transport.Other, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped returns how many events were refused or evicted.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close makes every later Push fail. Pending events can still be polled.
func (q *Queue) Close() {
	q.closed.Store(true)
}
