// File: audit/stack.go
package audit

import (
	"errors"
	"time"

	"github.com/adi3433/securevote-pro/models"
)

// ErrEmptyStack is returned when popping with nothing to undo.
var ErrEmptyStack = errors.New("audit stack is empty")

// DefaultMaxSize bounds the stack; the oldest event is evicted on
// overflow so undo depth degrades instead of memory growing unbounded.
const DefaultMaxSize = 10000

// Stack is a bounded LIFO log of ledger mutations. It is the in-memory
// source of truth for undo; durable audit rows live in storage. Not
// internally locked; the orchestrator guards it with the ledger lock.
type Stack struct {
	events  []models.AuditEvent
	maxSize int
}

func NewStack(maxSize int) *Stack {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Stack{maxSize: maxSize}
}

// Push appends an event, evicting the oldest if the stack is full. A
// zero Timestamp is filled in with the current time.
func (s *Stack) Push(event models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if len(s.events) >= s.maxSize {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)
}

// Pop removes and returns the most recent event.
func (s *Stack) Pop() (models.AuditEvent, error) {
	if len(s.events) == 0 {
		return models.AuditEvent{}, ErrEmptyStack
	}
	event := s.events[len(s.events)-1]
	s.events = s.events[:len(s.events)-1]
	return event, nil
}

// Peek returns the most recent event without removing it.
func (s *Stack) Peek() (models.AuditEvent, error) {
	if len(s.events) == 0 {
		return models.AuditEvent{}, ErrEmptyStack
	}
	return s.events[len(s.events)-1], nil
}

func (s *Stack) Size() int {
	return len(s.events)
}

// Recent returns up to n events, most recent first.
func (s *Stack) Recent(n int) []models.AuditEvent {
	if n <= 0 {
		return nil
	}
	if n > len(s.events) {
		n = len(s.events)
	}
	out := make([]models.AuditEvent, 0, n)
	for i := len(s.events) - 1; i >= len(s.events)-n; i-- {
		out = append(out, s.events[i])
	}
	return out
}

// Stats summarizes the stack contents.
type Stats struct {
	TotalEvents int                      `json:"total_events"`
	EventKinds  map[models.AuditKind]int `json:"event_kinds"`
	MaxSize     int                      `json:"max_size"`
	Oldest      *time.Time               `json:"oldest_event,omitempty"`
	Newest      *time.Time               `json:"newest_event,omitempty"`
}

func (s *Stack) Stats() Stats {
	stats := Stats{
		TotalEvents: len(s.events),
		EventKinds:  make(map[models.AuditKind]int),
		MaxSize:     s.maxSize,
	}
	for _, event := range s.events {
		stats.EventKinds[event.Kind]++
	}
	if len(s.events) > 0 {
		oldest := s.events[0].Timestamp
		newest := s.events[len(s.events)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}
	return stats
}
