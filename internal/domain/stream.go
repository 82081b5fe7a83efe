package domain

import (
	"fmt"
)

// EventSink is the producer side of an event stream. It stamps monotonic
// sequence numbers and refuses to emit anything after a terminal event,
// so every well-behaved provider satisfies the stream contract by
// construction. Not safe for concurrent use; a provider drives it from a
// single goroutine.
type EventSink struct {
	ch         chan StreamEvent
	next       int
	terminated bool
}

// NewEventSink creates a sink with the given channel buffer size.
func NewEventSink(buffer int) *EventSink {
	return &EventSink{
		ch: make(chan StreamEvent, buffer),
	}
}

// Events returns the consumer side of the stream.
func (s *EventSink) Events() <-chan StreamEvent {
	return s.ch
}

// Partial emits an incremental event. Returns false when the consumer has
// gone away (done channel closed) or the stream already terminated.
func (s *EventSink) Partial(done <-chan struct{}, payload any) bool {
	return s.send(done, StreamEvent{Kind: EventPartial, Payload: payload})
}

// Final emits the terminal success event.
func (s *EventSink) Final(done <-chan struct{}, payload any) bool {
	return s.send(done, StreamEvent{Kind: EventFinal, Payload: payload})
}

// Error emits the terminal failure event.
func (s *EventSink) Error(done <-chan struct{}, err error) bool {
	payload := "unknown error"
	if err != nil {
		payload = err.Error()
	}
	return s.send(done, StreamEvent{Kind: EventError, Payload: payload, Err: err})
}

// Close closes the stream. The producer must call it on every exit path.
func (s *EventSink) Close() {
	close(s.ch)
}

func (s *EventSink) send(done <-chan struct{}, ev StreamEvent) bool {
	if s.terminated {
		return false
	}

	ev.Seq = s.next

	select {
	case s.ch <- ev:
		s.next++
		if ev.Kind.Terminal() {
			s.terminated = true
		}
		return true
	case <-done:
		// Consumer abandoned the stream; stop producing.
		s.terminated = true
		return false
	}
}

// guardStream enforces the consumer-side stream contract over a provider
// channel: sequence numbers strictly increasing from 0, exactly one
// terminal event, nothing after it. Violations surface as a terminal
// error event wrapping ErrStreamProtocol. The returned channel closes
// after the terminal event or when done is closed.
func guardStream(done <-chan struct{}, in <-chan StreamEvent) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		next := 0
		for {
			select {
			case <-done:
				return
			case ev, ok := <-in:
				if !ok {
					// Producer closed without a terminal event.
					fail(done, out, next, fmt.Errorf("%w: stream ended without terminal event", ErrStreamProtocol))
					return
				}

				if ev.Seq != next {
					fail(done, out, next, fmt.Errorf("%w: expected seq %d, got %d", ErrStreamProtocol, next, ev.Seq))
					return
				}

				select {
				case out <- ev:
				case <-done:
					return
				}

				next++
				if ev.Kind.Terminal() {
					return
				}
			}
		}
	}()

	return out
}

func fail(done <-chan struct{}, out chan<- StreamEvent, seq int, err error) {
	select {
	case out <- StreamEvent{Seq: seq, Kind: EventError, Payload: err.Error(), Err: err}:
	case <-done:
	}
}
