package services

import (
	"context"
	"time"

	"go.uber.org/zap"
	"ordenes-service/middlewares"
)

// Notifier publishes order events on a best-effort basis: failures are logged
// and counted, never returned.
type Notifier struct {
	bus    EventBus
	logger *zap.Logger
}

// NewNotifier accepts a nil bus, in which case every event is dropped.
func NewNotifier(bus EventBus, logger *zap.Logger) *Notifier {
	return &Notifier{bus: bus, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, topic string, payload any) {
	if n == nil || n.bus == nil {
		return
	}
	err := n.bus.Publish(ctx, topic, payload)
	middlewares.RecordEventPublish(topic, err == nil)
	if err != nil {
		n.logger.Error("failed to publish event", zap.String("topic", topic), zap.Error(err))
		return
	}
	n.logger.Debug("event published", zap.String("topic", topic))
}

func (n *Notifier) Schedule(ctx context.Context, topic string, payload any, delay time.Duration) {
	if n == nil || n.bus == nil || delay <= 0 {
		return
	}
	err := n.bus.PublishDelayed(ctx, topic, payload, delay)
	middlewares.RecordEventPublish(topic, err == nil)
	if err != nil {
		n.logger.Warn("failed to schedule event", zap.String("topic", topic), zap.Duration("delay", delay), zap.Error(err))
	}
}
