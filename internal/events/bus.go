// Package events distributes run progress to SSE subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/audiocast/internal/metrics"
)

// Event is a published run event ready for transmission.
type Event struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	RunID     string `json:"run_id"`
	UserID    string `json:"-"`
	Timestamp string `json:"timestamp"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}

// Filter selects events for a subscriber. Empty fields match everything.
type Filter struct {
	UserID string
	RunID  string
	Types  []string
}

func (f Filter) matches(e Event) bool {
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Bus provides pub-sub event distribution with a ring buffer for replay on
// reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

func NewBus(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 1024
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of connected subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events after lastEventID. An empty ID
// replays everything buffered; an ID that has aged out replays nothing.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var out []Event
	found := lastEventID == ""

	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Publish sends an event to all matching subscribers and adds it to the
// ring buffer. Slow subscribers drop events; they can recover via replay.
func (b *Bus) Publish(runID, userID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	seq := b.seq.Add(1)
	now := time.Now()
	event := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), seq),
		Type:      eventType,
		RunID:     runID,
		UserID:    userID,
		Timestamp: now.UTC().Format(time.RFC3339),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = event
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if sub.filter.matches(event) {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}
	b.mu.RUnlock()

	metrics.SSEEventsPublishedTotal.Inc()
}
