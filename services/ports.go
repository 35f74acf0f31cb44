package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"ordenes-service/models"
)

var tracer = otel.Tracer("ordenes-service/services")

// StockOracle is the product service: the source of truth for stock and prices.
type StockOracle interface {
	GetProduct(ctx context.Context, productID int, token string) (models.Product, error)
	SetStock(ctx context.Context, productID, quantity int, op models.StockOperation, token string) error
}

// EventBus is the message broker. Nothing waits for consumers.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload any) error
	PublishDelayed(ctx context.Context, topic string, payload any, delay time.Duration) error
}

// TokenSource mints an Authorization header for calls the service makes
// without a user request.
type TokenSource func() (string, error)
