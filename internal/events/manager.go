// Package events provides a lightweight pub-sub bus used to notify the
// Compliance API layer (and its SSE stream) of ruleset and proposal
// lifecycle changes.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event emitted on the bus.
type EventType string

const (
	RulesChanged         EventType = "RULES_CHANGED"
	ProposalCreated      EventType = "PROPOSAL_CREATED"
	ProposalApproved     EventType = "PROPOSAL_APPROVED"
	ProposalRejected     EventType = "PROPOSAL_REJECTED"
	ProposalApplied      EventType = "PROPOSAL_APPLIED"
	SimulationCompleted  EventType = "SIMULATION_COMPLETED"
	ScraperTickCompleted EventType = "SCRAPER_TICK_COMPLETED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// Event represents a single occurrence on the bus.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Subscriber receives events pushed by Manager.Emit, e.g. the SSE handler.
type Subscriber chan Event

// Manager handles event emission, logging, and fan-out to subscribers.
type Manager struct {
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewManager creates a new event manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:  log.With().Str("service", "events").Logger(),
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a channel to receive future events. Call Unsubscribe
// when done to avoid leaking the channel's slot.
func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe.
func (m *Manager) Unsubscribe(ch chan Event) {
	m.mu.Lock()
	delete(m.subs, ch)
	m.mu.Unlock()
	close(ch)
}

// Emit emits an event: it is logged and fanned out to every live subscriber.
// Fan-out is non-blocking — a slow or stalled subscriber drops the event
// rather than stalling the emitting caller.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- event:
		default:
			m.log.Warn().Str("event_type", string(eventType)).Msg("Subscriber channel full, dropping event")
		}
	}
}

// EmitError emits an ErrorOccurred event.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
