package service

import (
	"context"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/event"
)

// NotificationHandler tells the initiator about every change to their request
// and the next approver role about work waiting for it. Delivery is best
// effort: failures are logged and never fail the event.
type NotificationHandler struct {
	notifier port.Notifier
	logger   port.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifier port.Notifier, logger port.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// Register subscribes the handler to request lifecycle events
func (h *NotificationHandler) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{event.TypeRequestCreated, event.TypeRequestTransitioned, event.TypeRequestReconciled} {
		d.Subscribe(t, "notification", h.Handle)
	}
}

// Handle implements dispatcher.Handler
func (h *NotificationHandler) Handle(ctx context.Context, evt *event.Event) error {
	payload := make(map[string]any, len(evt.Payload)+1)
	for k, v := range evt.Payload {
		payload[k] = v
	}
	payload["request_id"] = evt.RequestID

	var recipients []port.Recipient
	initiator := evt.GetPayloadString(event.KeyInitiatorID)
	// the initiator does not need telling about their own submission
	if initiator != "" && !(evt.Type == event.TypeRequestCreated && initiator == evt.GetPayloadString(event.KeyActorID)) {
		recipients = append(recipients, port.Recipient{ActorID: initiator})
	}
	if role := evt.GetPayloadString(event.KeyNextRole); role != "" {
		recipients = append(recipients, port.Recipient{Role: role})
	}

	for _, to := range recipients {
		if err := h.notifier.Notify(ctx, to, evt.Type.String(), payload); err != nil {
			h.logger.Error("Failed to send notification",
				"event_type", evt.Type,
				"request_id", evt.RequestID,
				"recipient", to.String(),
				"error", err,
			)
		}
	}
	return nil
}

// MetricsInvalidator drops cached counts whenever a request changes
type MetricsInvalidator struct {
	metrics MetricsService
	logger  port.Logger
}

// NewMetricsInvalidator creates a new MetricsInvalidator
func NewMetricsInvalidator(metrics MetricsService, logger port.Logger) *MetricsInvalidator {
	return &MetricsInvalidator{metrics: metrics, logger: logger}
}

// Register subscribes to every request event
func (m *MetricsInvalidator) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{event.TypeRequestCreated, event.TypeRequestTransitioned, event.TypeRequestReconciled, event.TypeRequestDeleted} {
		d.Subscribe(t, "metrics-invalidator", m.Handle)
	}
}

func (m *MetricsInvalidator) Handle(ctx context.Context, evt *event.Event) error {
	if err := m.metrics.Invalidate(ctx); err != nil {
		m.logger.Error("Failed to invalidate metrics cache", "event_type", evt.Type, "error", err)
	}
	return nil
}
