package events

import (
	"sync"
	"time"

	"barbershop/internal/models"

	"github.com/rs/zerolog"
)

// Event types published by the booking service.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentRescheduled   = "appointment.rescheduled"
	AppointmentStatusChanged = "appointment.status_changed"
	BlockoutCreated          = "blockout.created"
	BlockoutDeleted          = "blockout.deleted"
	WorkingHoursUpdated      = "working_hours.updated"
)

// Event represents a lightweight domain event.
type Event struct {
	Type        string
	BarberID    string
	Appointment *models.Appointment
	Blockout    *models.Blockout
	// PreviousStart and PreviousStatus describe the appointment before a reschedule
	// or status change.
	PreviousStart  time.Time
	PreviousStatus models.AppointmentStatus
	// Days lists the calendar days whose availability changed.
	Days      []time.Time
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged, never returned.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for the given event types.
func (b *EventBus) Subscribe(handler EventHandler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range eventTypes {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish notifies subscribers of the event type synchronously, in subscription order.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Str("barber_id", event.BarberID).Msg("Event handler failed")
		}
	}
}

// AllAppointmentEvents lists the appointment lifecycle events.
func AllAppointmentEvents() []string {
	return []string{AppointmentCreated, AppointmentRescheduled, AppointmentStatusChanged}
}

// AllScheduleEvents lists every event that changes a barber's availability.
func AllScheduleEvents() []string {
	return []string{
		AppointmentCreated, AppointmentRescheduled, AppointmentStatusChanged,
		BlockoutCreated, BlockoutDeleted, WorkingHoursUpdated,
	}
}
