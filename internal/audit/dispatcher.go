package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how the dispatcher buffers events.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards routine events when the buffer is full instead of
	// waiting for room. Event types listed in Critical always wait.
	DropIfFull bool
	Critical   []string
}

// Dispatcher hands events to a sink from one background goroutine so a slow
// sink never delays a login. A nil *Dispatcher is valid and drops everything.
type Dispatcher struct {
	sink     Sink
	now      func() time.Time
	queue    chan Event
	dropFull bool
	critical map[string]bool
	dropped  atomic.Uint64

	// mu guards closed. Emit holds the read lock while sending so Close
	// cannot close queue under a pending send.
	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewDispatcher starts the delivery goroutine. It returns nil when auditing
// is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:     sink,
		now:      time.Now,
		queue:    make(chan Event, max(cfg.BufferSize, 1)),
		dropFull: cfg.DropIfFull,
		critical: make(map[string]bool, len(cfg.Critical)),
		stopped:  make(chan struct{}),
	}
	for _, t := range cfg.Critical {
		d.critical[t] = true
	}
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer close(d.stopped)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event and stamps it if it has no timestamp. A routine event
// meeting a full buffer is dropped when DropIfFull is set. Otherwise, and
// always for critical events, Emit waits for room until ctx ends. Events
// emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- event:
		return
	default:
	}
	if d.dropFull && !d.critical[event.EventType] {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and returns once the buffered ones reached
// the sink. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

// Dropped counts events that never reached the buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
