// Package events provides a publish/subscribe bus for operational
// observability. The agent, session store and memory layer publish to it;
// the websocket feed at /api/events subscribes. The bus is nil-safe:
// calling Publish or Emit on a nil *Bus is a no-op, so components do not
// need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the tool-calling loop.
	SourceAgent = "agent"
	// SourceSession identifies events from session lifecycle operations.
	SourceSession = "session"
	// SourceMemory identifies events from memory flush and capture.
	SourceMemory = "memory"
	// SourceProvider identifies model provider reachability changes.
	SourceProvider = "provider"
)

// Kind constants describe the type of event within a source.
const (
	// KindRequestStart signals the beginning of a run.
	// Data: run_id, session_id, input_len.
	KindRequestStart = "request_start"
	// KindLLMCall signals the start of a completion call.
	// Data: run_id, step, model, tools.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals completion of a completion call.
	// Data: run_id, step, model, tokens_in, tokens_out, tool_calls.
	KindLLMResponse = "llm_response"
	// KindToolCall signals the start of a tool execution.
	// Data: run_id, step, tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a tool execution.
	// Data: run_id, step, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindRequestComplete signals the end of a run.
	// Data: run_id, session_id, steps, tool_calls, failed, elapsed_ms.
	KindRequestComplete = "request_complete"

	// KindSessionCreated signals a new session.
	// Data: session_id.
	KindSessionCreated = "session_created"
	// KindSessionCleared signals a session's history was emptied.
	// Data: session_id.
	KindSessionCleared = "session_cleared"
	// KindSessionDeleted signals a session was removed.
	// Data: session_id, archived.
	KindSessionDeleted = "session_deleted"

	// KindFlushTriggered signals a pre-compaction memory flush round.
	// Data: session_id, tokens, trigger_point.
	KindFlushTriggered = "flush_triggered"
	// KindFlushComplete signals the flush round finished.
	// Data: session_id, silent.
	KindFlushComplete = "flush_complete"
	// KindMemoryCaptured signals automatic capture saved entries.
	// Data: session_id, count, categories.
	KindMemoryCaptured = "memory_captured"
	// KindProviderUp signals that a model provider became reachable.
	// Data: provider, attempts.
	KindProviderUp = "provider_up"
	// KindProviderDown signals that a model provider stopped answering.
	// Data: provider, error.
	KindProviderDown = "provider_down"
)

// defaultHistory is how many recent events a bus keeps for late
// subscribers.
const defaultHistory = 100

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's view of the channel.
	recvToSend map[<-chan Event]chan Event

	histMu  sync.Mutex
	history []Event // ring buffer
	next    int
	full    bool
}

// New creates a new event bus that remembers the last 100 events.
func New() *Bus {
	return NewWithHistory(defaultHistory)
}

// NewWithHistory creates a bus that remembers the last n events. n <= 0
// disables the history.
func NewWithHistory(n int) *Bus {
	b := &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
	if n > 0 {
		b.history = make([]Event, n)
	}
	return b
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.remember(e)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit is shorthand for publishing an event stamped with the current
// time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

func (b *Bus) remember(e Event) {
	if len(b.history) == 0 {
		return
	}
	b.histMu.Lock()
	defer b.histMu.Unlock()
	b.history[b.next] = e
	b.next = (b.next + 1) % len(b.history)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns remembered events, oldest first.
func (b *Bus) Recent() []Event {
	if b == nil || len(b.history) == 0 {
		return nil
	}
	b.histMu.Lock()
	defer b.histMu.Unlock()
	if !b.full {
		return append([]Event(nil), b.history[:b.next]...)
	}
	out := make([]Event, 0, len(b.history))
	out = append(out, b.history[b.next:]...)
	return append(out, b.history[:b.next]...)
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// websocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
