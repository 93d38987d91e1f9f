// Package alerting bridges the in-process event bus to persisted Alert
// rows. Worker code publishes WORKER_UNREACHABLE and RATE_LIMIT_SPIKE onto
// the bus; a single subscriber here turns each alert event into a durable
// row so alerts survive process restarts and are queryable. The subscriber
// also handles HIGH_ERROR_RATE and DISK_FULL_WARNING, which nothing in this
// repository publishes.
package alerting

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"github.com/eternis-tender/tender-pipeline/pkg/db"
	"github.com/eternis-tender/tender-pipeline/pkg/events"
)

// Severity levels recorded on the Alert row.
const (
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

var severityByKind = map[events.EventType]string{
	events.WorkerUnreachable: SeverityCritical,
	events.HighErrorRate:     SeverityWarning,
	events.DiskFullWarning:   SeverityWarning,
	events.RateLimitSpike:    SeverityWarning,
}

// Subscriber persists alert events to Store. These do not change lifecycle
// behavior — the batch/work item state machines are indifferent to alerts.
type Subscriber struct {
	store *db.Store
	log   *log.Logger
}

// NewSubscriber wires a Subscriber to bus for every known alert EventType.
func NewSubscriber(bus *events.EventBus, store *db.Store, logger *log.Logger) *Subscriber {
	s := &Subscriber{store: store, log: logger}
	for kind := range severityByKind {
		bus.Subscribe(kind, s.handle)
	}
	return s
}

func (s *Subscriber) handle(ctx context.Context, event events.Event) error {
	severity := severityByKind[event.Type]
	message, _ := event.Data["message"].(string)
	if message == "" {
		message = string(event.Type)
	}

	alertCtx, err := json.Marshal(event.Data)
	if err != nil {
		alertCtx = json.RawMessage("{}")
	}

	if _, err := s.store.CreateAlert(ctx, string(event.Type), severity, message, alertCtx); err != nil {
		s.log.Error("failed to persist alert", "kind", event.Type, "error", err)
		return err
	}
	return nil
}

// Publish is a convenience for callers that only have the bus, not an
// events.Event literal, wiring message and extra context fields through
// event.Data.
func Publish(ctx context.Context, bus *events.EventBus, kind events.EventType, message string, fields map[string]interface{}) {
	data := map[string]interface{}{"message": message}
	for k, v := range fields {
		data[k] = v
	}
	bus.Publish(ctx, events.Event{Type: kind, Data: data})
}
