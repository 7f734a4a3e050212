package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event types published by the scheduling engine.
const (
	AppointmentCreated           = "appointment_created"
	AppointmentUpdated           = "appointment_updated"
	AppointmentDeleted           = "appointment_deleted"
	StatusChanged                = "status_changed"
	RecurringAppointmentsCreated = "recurring_appointments_created"
	CalendarSyncCompleted        = "calendar_sync_completed"
	CalendarSyncFailed           = "calendar_sync_failed"
	CleanupCompleted             = "cleanup_completed"
)

// Event carries a domain notification and its payload snapshot.
type Event struct {
	Type    string
	Payload interface{}
}

// Handler consumes a published event.
type Handler func(Event)

// Bus is an in-process fan-out dispatcher. Publish never blocks the caller;
// handlers run synchronously in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
	logger   *zap.Logger
}

// NewBus constructs an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// SubscribeAll registers a handler invoked for every published event.
func (b *Bus) SubscribeAll(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish dispatches the event to all matching handlers. A panicking handler
// is recovered and logged so one subscriber cannot take down a mutation path.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	typed := append([]Handler(nil), b.handlers[evt.Type]...)
	catchAll := append([]Handler(nil), b.all...)
	b.mu.RUnlock()

	for _, h := range typed {
		b.dispatch(h, evt)
	}
	for _, h := range catchAll {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", evt.Type),
				zap.Any("panic", r))
		}
	}()
	h(evt)
}
