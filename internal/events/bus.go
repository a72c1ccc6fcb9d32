// Package events provides the in-process publish/subscribe bus feeding the
// admin log stream. The bus is transport-agnostic: subscribers receive events
// on a channel and the HTTP layer turns them into SSE frames.
package events

import (
	"sync"
	"time"
)

// Event categories. Progress events are high-rate and are excluded from the
// replay buffer; under back-pressure they may be dropped, log and state
// events may not.
const (
	TypeLog      = "log"
	TypeState    = "state"
	TypeProgress = "progress"
)

// Event names published by the pipeline.
const (
	DownloadStart    = "download:start"
	DownloadProgress = "download:progress"
	DownloadComplete = "download:complete"
	DownloadError    = "download:error"
	UploadQueued     = "upload:queued"
	UploadStart      = "upload:start"
	UploadProgress   = "upload:progress"
	UploadComplete   = "upload:complete"
	UploadError      = "upload:error"
	UploadPaused     = "upload:paused"
	UploadResumed    = "upload:resumed"
	UploadCancelled  = "upload:cancelled"
)

// Event is one bus message.
type Event struct {
	Type      string         `json:"type"`
	Name      string         `json:"name,omitempty"`
	Level     string         `json:"level,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscriber receives events on C. The bus closes C on eviction; subscribers
// must also call Unsubscribe when done.
type Subscriber struct {
	C      chan Event
	bus    *Bus
	closed bool
}

const (
	defaultBufferSize     = 100
	subscriberChannelSize = 64
)

// Bus fans events out to subscribers and keeps a bounded replay buffer of
// recent non-progress events for new subscribers.
type Bus struct {
	mu         sync.Mutex
	subs       map[*Subscriber]struct{}
	buffer     []Event
	bufferSize int
}

func NewBus() *Bus {
	return &Bus{
		subs:       make(map[*Subscriber]struct{}),
		bufferSize: defaultBufferSize,
	}
}

// Subscribe registers a new subscriber and replays the buffered events into
// its channel before any live event is delivered.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		C:   make(chan Event, subscriberChannelSize),
		bus: b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.buffer {
		select {
		case sub.C <- ev:
		default:
		}
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (s *Subscriber) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.evictLocked(s)
}

func (b *Bus) evictLocked(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s)
	close(s.C)
}

// Publish delivers an event to every subscriber. Progress events are dropped
// for slow subscribers; a subscriber too slow for a log or state event is
// evicted, matching the write-error semantics of the SSE layer.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Type != TypeProgress {
		b.buffer = append(b.buffer, ev)
		if len(b.buffer) > b.bufferSize {
			b.buffer = b.buffer[len(b.buffer)-b.bufferSize:]
		}
	}

	for sub := range b.subs {
		select {
		case sub.C <- ev:
		default:
			if ev.Type == TypeProgress {
				continue
			}
			b.evictLocked(sub)
		}
	}
}

// Log publishes a level-tagged log event.
func (b *Bus) Log(level, message string, data map[string]any) {
	b.Publish(Event{Type: TypeLog, Level: level, Message: message, Data: data})
}

// State publishes a named lifecycle event.
func (b *Bus) State(name string, data map[string]any) {
	b.Publish(Event{Type: TypeState, Name: name, Data: data})
}

// Progress publishes a named high-rate progress event.
func (b *Bus) Progress(name string, data map[string]any) {
	b.Publish(Event{Type: TypeProgress, Name: name, Data: data})
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
