// Package eventlog records timestamped ship events. Logs are ordered by
// timestamp with ties broken by insertion order.
package eventlog

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one immutable log entry.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Data      any
}

// New builds an event with a fresh ID.
func New(ts time.Time, data any) Event {
	return Event{ID: uuid.New(), Timestamp: ts, Data: data}
}

// Log is an append-only, timestamp-ordered event log.
type Log interface {
	Add(event Event) error
	// Events returns entries with start <= Timestamp <= end in order.
	Events(start, end time.Time) ([]Event, error)
	Len() int
}

// MemoryLog keeps events in a sorted slice. Safe for concurrent use.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Add(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Insert after the last entry with the same timestamp so ties keep
	// insertion order.
	idx := sort.Search(len(l.events), func(i int) bool {
		return l.events[i].Timestamp.After(event.Timestamp)
	})
	l.events = append(l.events, Event{})
	copy(l.events[idx+1:], l.events[idx:])
	l.events[idx] = event
	return nil
}

func (l *MemoryLog) Events(start, end time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// All returns a copy of every event in order.
func (l *MemoryLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
