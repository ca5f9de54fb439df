package eventlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("event log queue full")
	ErrClosed    = errors.New("event log closed")
)

// Gateway persists events in the background through a fixed worker pool.
// Append never blocks; failures are logged and not retried.
type Gateway struct {
	sink    Sink
	timeout time.Duration
	jobs    chan SessionEvent
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewGateway(sink Sink, workers, queue int, timeout time.Duration) *Gateway {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	g := &Gateway{
		sink:    sink,
		timeout: timeout,
		jobs:    make(chan SessionEvent, queue),
	}
	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.work()
	}
	return g
}

func (g *Gateway) work() {
	defer g.wg.Done()
	for ev := range g.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		err := g.sink.AppendSessionEvent(ctx, ev)
		cancel()
		if err != nil {
			zap.L().Warn("eventlog.append_failed",
				zap.String("room_id", ev.RoomID),
				zap.String("event_type", ev.EventType),
				zap.Error(err),
			)
		}
	}
}

// Append queues ev for persistence.
func (g *Gateway) Append(ev SessionEvent) {
	if err := g.TryAppend(ev); err != nil {
		zap.L().Warn("eventlog.dropped",
			zap.String("room_id", ev.RoomID),
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}

// TryAppend is Append reporting why an event was not queued.
func (g *Gateway) TryAppend(ev SessionEvent) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	select {
	case g.jobs <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.jobs)
	g.mu.Unlock()
	g.wg.Wait()
}
