// CloudEvents-based event bus for lifecycle observability. Every lifecycle
// event is published as a CloudEvent so external logging and alerting
// collaborators consume a standardized, interoperable record.
package conductor

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is an alias for the CloudEvents Event type for convenience.
type CloudEvent = cloudevents.Event

// Event type constants for orchestrator events, using reverse domain
// notation per the CloudEvents specification.
const (
	EventTypeSystemStarted        = "com.conductor.system.started"
	EventTypeSystemStopped        = "com.conductor.system.stopped"
	EventTypeComponentStarted     = "com.conductor.component.started"
	EventTypeComponentStopped     = "com.conductor.component.stopped"
	EventTypeComponentFailed      = "com.conductor.component.failed"
	EventTypeComponentRestarted   = "com.conductor.component.restarted"
	EventTypeHealthCheckCompleted = "com.conductor.health.check.completed"
	EventTypeMetricsUpdated       = "com.conductor.metrics.updated"
	EventTypeConfigReloaded       = "com.conductor.config.reloaded"
)

// eventSource is the CloudEvents source attribute for orchestrator events.
const eventSource = "conductor.orchestrator"

// Observer defines the interface for objects that want to be notified of
// lifecycle events. Observers register with a Subject and are called for
// each event they subscribed to.
type Observer interface {
	// OnEvent is called when an event the observer is interested in occurs.
	// Observers should handle events quickly to avoid blocking others.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject defines the interface for objects that can be observed. The
// orchestrator implements Subject; all events in the lifecycle vocabulary
// above flow through it.
type Subject interface {
	// RegisterObserver adds an observer. An empty eventTypes list
	// subscribes the observer to all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers sends an event to all registered observers without
	// blocking the caller; observer errors and panics are contained.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers returns information about registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging and monitoring.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// FuncObserver provides a simple way to create observers from functions.
type FuncObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFuncObserver creates an observer that calls handler for each event.
func NewFuncObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FuncObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (f *FuncObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FuncObserver) ObserverID() string {
	return f.id
}

// NewCloudEvent creates a CloudEvent with the required attributes set.
func NewCloudEvent(eventType, source string, data interface{}, metadata map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// generateEventID generates a unique identifier using UUIDv7, which embeds
// timestamp information for time-ordered uniqueness.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent validates an event against the CloudEvents spec.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return nil
}

// observerRegistration holds a registered observer with its type filter.
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // empty means all events
	registeredAt time.Time
}

// eventBus implements Subject. It is embedded in the orchestrator; events
// are delivered asynchronously with per-observer panic recovery so a
// misbehaving observer never disturbs the lifecycle path.
type eventBus struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	logger    Logger
}

func newEventBus(logger Logger) *eventBus {
	return &eventBus{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

// RegisterObserver implements Subject.
func (b *eventBus) RegisterObserver(observer Observer, eventTypes ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventTypeMap := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	b.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	b.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver implements Subject.
func (b *eventBus) UnregisterObserver(observer Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.observers[observer.ObserverID()]; exists {
		delete(b.observers, observer.ObserverID())
		b.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}

	return nil
}

// NotifyObservers implements Subject.
func (b *eventBus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}

	if err := ValidateCloudEvent(event); err != nil {
		b.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	for _, registration := range b.observers {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}

		registration := registration
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Observer panicked",
						"observerID", registration.observer.ObserverID(),
						"event", event.Type(), "panic", r)
				}
			}()

			if err := registration.observer.OnEvent(ctx, event); err != nil {
				b.logger.Error("Observer error",
					"observerID", registration.observer.ObserverID(),
					"event", event.Type(), "error", err)
			}
		}()
	}

	return nil
}

// GetObservers implements Subject.
func (b *eventBus) GetObservers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, registration := range b.observers {
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}

		info = append(info, ObserverInfo{
			ID:           registration.observer.ObserverID(),
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}

	return info
}

// emit builds and publishes an orchestrator event. Emission is fire and
// forget; delivery failures are logged, never propagated to the lifecycle
// path.
func (b *eventBus) emit(ctx context.Context, eventType string, data interface{}) {
	event := NewCloudEvent(eventType, eventSource, data, nil)
	if err := b.NotifyObservers(ctx, event); err != nil {
		b.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
