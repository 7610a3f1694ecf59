package agent

import "context"

// eventBuffer is how many events a stream queues ahead of its consumer.
const eventBuffer = 64

// Stream is a running streaming run. Read Events until the channel
// closes, then call Result. A stream is consumed once; it cannot be
// restarted.
type Stream struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

// startStream runs body on its own goroutine. body's emit blocks while
// the buffer is full, so a slow consumer slows the run rather than
// losing events. Once the stream is closed or ctx ends, emit stops
// delivering and body winds down at its next suspension point.
func startStream(ctx context.Context, body func(ctx context.Context, emit func(Event)) Result) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	emit := func(ev Event) {
		// Prefer delivery while there is room, even after cancellation,
		// so a finished run still reports its agent-finish.
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		defer cancel()
		s.result = body(ctx, emit)
	}()
	return s
}

// Events returns the event channel. It is closed after the final
// agent-finish event.
func (s *Stream) Events() <-chan Event { return s.events }

// Result waits for the run to end and returns its result.
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}

// Done is closed when the run has ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Close abandons the stream. A tool already executing runs to
// completion but no further rounds start. Close does not wait; use
// Result for that. It is safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
}

// Collect drains the stream and returns every event with the result.
func (s *Stream) Collect() ([]Event, Result) {
	var evs []Event
	for ev := range s.events {
		evs = append(evs, ev)
	}
	return evs, s.Result()
}
