package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"ordenes-service/config"
)

const (
	TopicOrderCreated       = "orden.created"
	TopicOrderStatusUpdated = "orden.status.updated"
	TopicPaymentCheck       = "orden.payment_check"
)

var ErrDelayUnsupported = errors.New("delayed exchange not available")

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config

	mu           sync.Mutex
	delayEnabled bool
	logger       *zap.Logger
}

func NewRabbitMQ(cfg *config.Config, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
		logger:  logger,
	}, nil
}

// SetupQueues declares the event exchange, the dead-letter queue and, when the
// broker has the delayed-message plugin, the payment-check queue.
func (r *RabbitMQ) SetupQueues() error {
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.OrderExchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare %s: %w", r.Cfg.OrderExchange, err)
	}

	dlx := r.Cfg.DeadLetterQueue + "_exchange"
	if err := r.Channel.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlx, err)
	}
	if _, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	); err != nil {
		return fmt.Errorf("declare %s: %w", r.Cfg.DeadLetterQueue, err)
	}
	if err := r.Channel.QueueBind(r.Cfg.DeadLetterQueue, r.Cfg.DeadLetterQueue, dlx, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", r.Cfg.DeadLetterQueue, err)
	}

	// A failed declare closes the channel, so it is reopened before carrying on.
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.DelayExchange,
		"x-delayed-message",
		true,
		false,
		false,
		false,
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		r.logger.Warn("delayed exchange not supported, payment checks disabled", zap.Error(err))
		ch, chErr := r.Conn.Channel()
		if chErr != nil {
			return fmt.Errorf("reopen channel: %w", chErr)
		}
		r.Channel = ch
		return nil
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.PaymentCheckQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	); err != nil {
		return fmt.Errorf("declare %s: %w", r.Cfg.PaymentCheckQueue, err)
	}
	if err := r.Channel.QueueBind(r.Cfg.PaymentCheckQueue, TopicPaymentCheck, r.Cfg.DelayExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", r.Cfg.PaymentCheckQueue, err)
	}

	r.delayEnabled = true
	return nil
}

// DelayEnabled reports whether SetupQueues declared the payment-check queue.
func (r *RabbitMQ) DelayEnabled() bool {
	return r.delayEnabled
}

// Publish sends payload as persistent JSON on the order exchange.
func (r *RabbitMQ) Publish(ctx context.Context, topic string, payload any) error {
	msg, err := newPublishing(ctx, payload)
	if err != nil {
		return err
	}
	return r.publish(ctx, r.Cfg.OrderExchange, topic, msg)
}

// PublishDelayed routes payload through the delayed exchange.
func (r *RabbitMQ) PublishDelayed(ctx context.Context, topic string, payload any, delay time.Duration) error {
	if !r.delayEnabled {
		return ErrDelayUnsupported
	}
	msg, err := newPublishing(ctx, payload)
	if err != nil {
		return err
	}
	msg.Headers["x-delay"] = delay.Milliseconds()
	return r.publish(ctx, r.Cfg.DelayExchange, topic, msg)
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Channel.PublishWithContext(ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func newPublishing(ctx context.Context, payload any) (amqp.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier(headers))

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Headers:      headers,
		Body:         body,
	}, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			r.logger.Debug("close channel", zap.Error(err))
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			r.logger.Debug("close connection", zap.Error(err))
		}
	}
}
