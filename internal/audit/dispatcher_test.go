package audit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type gateSink struct {
	gate      chan struct{}
	delivered atomic.Int32
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
	s.delivered.Add(1)
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

func TestDispatcherDeliversAndStampsEvents(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "login_success", AccountID: "a1"})

	select {
	case ev := <-sink.Events():
		if ev.EventType != "login_success" || ev.AccountID != "a1" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	// First event is taken by the worker and parks in the sink; second fills
	// the buffer. Everything after that is dropped.
	d.Emit(context.Background(), Event{EventType: "e1"})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	d.Emit(context.Background(), Event{EventType: "e4"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit")
	}
	if got := d.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "e3"})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("expected timed-out emit to count as dropped, got %d", got)
	}
}

func TestDispatcherCloseFlushesBuffer(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "logout"})
	}
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after_close"})

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 flushed events, got %d", got)
	}
}

func TestDispatcherCriticalEventsWaitForRoom(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Critical:   []string{"refresh_replay_detected"},
	}, sink)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	time.Sleep(20 * time.Millisecond)
	d.Emit(context.Background(), Event{EventType: "login_success"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "refresh_replay_detected", AccountID: "a1"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("critical event must wait for room instead of being dropped")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("critical event never queued")
	}
	d.Close()

	if got := d.Dropped(); got != 0 {
		t.Fatalf("expected no drops, got %d", got)
	}
	if got := sink.delivered.Load(); got != 3 {
		t.Fatalf("expected 3 delivered events, got %d", got)
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, NoOpSink{})
	d.Close()
	d.Close()
}
