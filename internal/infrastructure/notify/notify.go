// Package notify delivers approval notifications
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
)

// Envelope is the message published for each notification
type Envelope struct {
	Recipient port.Recipient `json:"recipient"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	SentAt    time.Time      `json:"sentAt"`
}

// LogNotifier writes notifications to the service log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, to port.Recipient, eventType string, payload map[string]any) error {
	n.logger.Info("Notification",
		zap.String("recipient", to.String()),
		zap.String("event_type", eventType),
		zap.Any("payload", payload),
	)
	return nil
}

// RedisNotifier publishes a JSON envelope on a redis channel for delivery
// workers to fan out
type RedisNotifier struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, to port.Recipient, eventType string, payload map[string]any) error {
	raw, err := json.Marshal(Envelope{
		Recipient: to,
		EventType: eventType,
		Payload:   payload,
		SentAt:    n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// MultiNotifier sends to every notifier and joins their errors
type MultiNotifier []port.Notifier

func (m MultiNotifier) Notify(ctx context.Context, to port.Recipient, eventType string, payload map[string]any) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, to, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ port.Notifier = (*LogNotifier)(nil)
	_ port.Notifier = (*RedisNotifier)(nil)
	_ port.Notifier = MultiNotifier(nil)
)
