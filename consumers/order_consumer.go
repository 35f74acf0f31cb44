package consumers

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/config"
	"ordenes-service/models"
	"ordenes-service/rabbitmq"
)

var tracer = otel.Tracer("ordenes-service/consumers")

// PaymentChecker cancels orders nobody paid for in time.
type PaymentChecker interface {
	CancelUnpaidOrder(ctx context.Context, orderID int) (bool, error)
}

type OrderConsumer struct {
	checker PaymentChecker
	logger  *zap.Logger
}

func NewOrderConsumer(checker PaymentChecker, logger *zap.Logger) *OrderConsumer {
	return &OrderConsumer{checker: checker, logger: logger}
}

// Start consumes the payment-check queue and the dead-letter queue until ctx
// is done or the channel closes.
func (oc *OrderConsumer) Start(ctx context.Context, ch *amqp.Channel, cfg *config.Config) error {
	msgs, err := ch.Consume(
		cfg.PaymentCheckQueue,
		config.ServiceName, // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.PaymentCheckQueue, err)
	}
	go oc.drain(ctx, msgs, oc.HandlePaymentCheck)

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		config.ServiceName+"-dlq",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		oc.logger.Warn("dead-letter consumer not registered", zap.String("queue", cfg.DeadLetterQueue), zap.Error(err))
		return nil
	}
	go oc.drain(ctx, dlqMsgs, oc.HandleDeadLetter)
	return nil
}

func (oc *OrderConsumer) drain(ctx context.Context, msgs <-chan amqp.Delivery, handle func(context.Context, amqp.Delivery)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(ctx, msg)
		}
	}
}

// HandlePaymentCheck cancels the order if it is still pending. Messages that
// cannot be processed are rejected without requeue so they land in the
// dead-letter queue.
func (oc *OrderConsumer) HandlePaymentCheck(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			oc.logger.Error("panic while processing payment check", zap.Any("panic", r), zap.String("message_id", msg.MessageId))
			oc.reject(msg)
		}
	}()

	ctx = otel.GetTextMapPropagator().Extract(ctx, rabbitmq.HeaderCarrier(msg.Headers))
	ctx, span := tracer.Start(ctx, "payment_check.consume")
	defer span.End()

	var event models.PaymentCheckEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil || event.OrderID <= 0 {
		oc.logger.Error("invalid payment check message", zap.ByteString("body", msg.Body), zap.Error(err))
		oc.reject(msg)
		return
	}
	span.SetAttributes(attribute.Int("orden.id", event.OrderID))

	cancelled, err := oc.checker.CancelUnpaidOrder(ctx, event.OrderID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) || apperrors.Is(err, apperrors.KindConflict) {
			oc.logger.Warn("payment check dropped", zap.Int("orden_id", event.OrderID), zap.Error(err))
			oc.ack(msg)
			return
		}
		oc.logger.Error("payment check failed", zap.Int("orden_id", event.OrderID), zap.Error(err))
		oc.reject(msg)
		return
	}

	oc.logger.Info("payment check processed", zap.Int("orden_id", event.OrderID), zap.Bool("cancelada", cancelled))
	oc.ack(msg)
}

// HandleDeadLetter records the message and drops it.
func (oc *OrderConsumer) HandleDeadLetter(ctx context.Context, msg amqp.Delivery) {
	oc.logger.Warn("dead letter received",
		zap.String("message_id", msg.MessageId),
		zap.String("routing_key", msg.RoutingKey),
		zap.ByteString("body", msg.Body))
	oc.ack(msg)
}

func (oc *OrderConsumer) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		oc.logger.Error("ack failed", zap.Error(err))
	}
}

func (oc *OrderConsumer) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		oc.logger.Error("nack failed", zap.Error(err))
	}
}
