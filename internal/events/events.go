package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// EventTripPlanned is emitted when a trip proposal is produced
	EventTripPlanned EventType = "trip.planned"
	// EventTripRejected is emitted when no flight fits the budget
	EventTripRejected EventType = "trip.rejected"
)

// Event represents an event in the system.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TripPlannedData contains data for trip planned events.
type TripPlannedData struct {
	Origin         string  `json:"origin"`
	Destination    string  `json:"destination"`
	DepartureDate  string  `json:"departureDate"`
	ReturnDate     string  `json:"returnDate,omitempty"`
	Passengers     int     `json:"passengers"`
	Budget         float64 `json:"budget"`
	FlightCost     float64 `json:"flightCost"`
	Estimated      float64 `json:"estimated"`
	Nights         int     `json:"nights"`
	Accommodations int     `json:"accommodations"`
}

// TripRejectedData contains data for trip rejected events.
type TripRejectedData struct {
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DepartureDate string  `json:"departureDate"`
	Passengers    int     `json:"passengers"`
	Budget        float64 `json:"budget"`
	OffersFound   int     `json:"offersFound"`
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   *slog.Logger
	inflight sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger *slog.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously on a context detached from the caller's cancellation.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	// Handlers are counted under the read lock so Shutdown, once it holds
	// the write lock, observes every delivery it has to wait for.
	m.mu.RLock()
	handlers := m.handlers[eventType]
	if !m.enabled || len(handlers) == 0 {
		m.mu.RUnlock()
		return
	}
	m.inflight.Add(len(handlers))
	m.mu.RUnlock()

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		go func(h Handler) {
			defer m.inflight.Done()
			if err := h(ctx, event); err != nil {
				m.logger.Warn("event handler failed",
					"event_id", event.ID,
					"event_type", string(event.Type),
					"error", err,
				)
			}
		}(handler)
	}
}

// PublishTripPlanned publishes a trip planned event.
func (m *Manager) PublishTripPlanned(ctx context.Context, data TripPlannedData) {
	m.Publish(ctx, EventTripPlanned, data)
}

// PublishTripRejected publishes a trip rejected event.
func (m *Manager) PublishTripRejected(ctx context.Context, data TripRejectedData) {
	m.Publish(ctx, EventTripRejected, data)
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.inflight.Wait()
}
