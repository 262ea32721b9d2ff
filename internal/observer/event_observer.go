package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GradingEvent describes something that happened while grading a batch
type GradingEvent struct {
	EventType    EventType              `json:"event_type"`
	Timestamp    time.Time              `json:"timestamp"`
	AssignmentID string                 `json:"assignment_id"`
	BatchID      string                 `json:"batch_id,omitempty"`
	PageNumber   int                    `json:"page_number,omitempty"`
	Duration     time.Duration          `json:"duration"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of grading event
type EventType string

const (
	BatchStarted   EventType = "batch_started"
	BatchCompleted EventType = "batch_completed"
	BatchFailed    EventType = "batch_failed"
	// PageGraded when a page produced a grade record
	PageGraded EventType = "page_graded"
	// PageUnidentified when a page was diverted to the ledger
	PageUnidentified EventType = "page_unidentified"
	PageFetchFailed  EventType = "page_fetch_failed"
	PageResolved     EventType = "page_resolved"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event GradingEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event GradingEvent)
}

// LoggingObserver logs grading events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles grading events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event GradingEvent) {
	fields := logrus.Fields{
		"event_type":    event.EventType,
		"assignment_id": event.AssignmentID,
		"duration":      event.Duration,
		"success":       event.Success,
	}
	if event.BatchID != "" {
		fields["batch_id"] = event.BatchID
	}
	if event.PageNumber > 0 {
		fields["page"] = event.PageNumber
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case BatchStarted:
		entry.Info("Grading batch started")
	case BatchCompleted:
		entry.Info("Grading batch completed")
	case BatchFailed:
		entry.Error("Grading batch failed")
	case PageGraded:
		entry.Debug("Page graded")
	case PageUnidentified:
		entry.Info("Page added to unidentified ledger")
	case PageFetchFailed:
		entry.Warn("Page fetch failed")
	case PageResolved:
		entry.Info("Unidentified page resolved")
	default:
		entry.Info("Grading event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription
// order. Observers run on the caller's goroutine and must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event GradingEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event GradingEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the batch
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
