// Package events fans typed pipeline events out to in-process subscribers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names an event.
type EventType string

const (
	BatchCompleted     EventType = "BatchCompleted"
	SnapshotCalculated EventType = "SnapshotCalculated"
	AggregateRefreshed EventType = "AggregateRefreshed"
	BackupCompleted    EventType = "BackupCompleted"
	ErrorOccurred      EventType = "ErrorOccurred"
	JobStarted         EventType = "JobStarted"
	JobProgress        EventType = "JobProgress"
	JobCompleted       EventType = "JobCompleted"
	JobFailed          EventType = "JobFailed"
)

// Manager delivers events to subscribers. Delivery never blocks the
// emitter: a subscriber whose buffer is full misses the event.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	log         zerolog.Logger
}

type subscriber struct {
	ch     chan EventWithData
	filter map[EventType]bool // empty receives everything
}

// NewManager creates an event manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[int]*subscriber),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// EmitTyped publishes data under eventType on behalf of module.
func (m *Manager) EmitTyped(eventType EventType, module string, data EventData) {
	if m == nil {
		return
	}
	event := EventWithData{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, sub := range m.subscribers {
		if len(sub.filter) > 0 && !sub.filter[eventType] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			m.log.Debug().Int("subscriber", id).Str("type", string(eventType)).Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a subscriber for the given types (all types when none
// are given). The returned function unsubscribes and closes the channel.
func (m *Manager) Subscribe(buffer int, types ...EventType) (<-chan EventWithData, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscriber{
		ch:     make(chan EventWithData, buffer),
		filter: make(map[EventType]bool, len(types)),
	}
	for _, t := range types {
		sub.filter[t] = true
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = sub
	m.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(sub.ch)
		})
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}
