package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pendiente"
	StatusPaid      OrderStatus = "pagada"
	StatusShipped   OrderStatus = "enviada"
	StatusDelivered OrderStatus = "entregada"
	StatusCancelled OrderStatus = "cancelada"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal states accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RestoresStock reports whether cancelling from s must return stock.
func (s OrderStatus) RestoresStock() bool {
	return s == StatusPending || s == StatusPaid
}

type Order struct {
	ID               int             `json:"id"`
	UserID           int             `json:"usuarioId"`
	Total            decimal.Decimal `json:"total"`
	Status           OrderStatus     `json:"estado"`
	DeliveredAt      *time.Time      `json:"fechaEntrega"`
	DeliveryAddress  string          `json:"direccionEnvio"`
	PaymentMethod    string          `json:"metodoPago"`
	PaymentReference *string         `json:"referenciaPago"`
	Notes            *string         `json:"notas"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Details          []OrderDetail   `json:"detalles"`
}

type OrderDetail struct {
	ID          int             `json:"id"`
	OrderID     int             `json:"ordenId"`
	ProductID   int             `json:"productoId"`
	Quantity    int             `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precioUnitario"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductName string          `json:"nombreProducto"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// NewOrderDetail snapshots a cart item; the subtotal is fixed here.
func NewOrderDetail(item CartItem) OrderDetail {
	return OrderDetail{
		ProductID:   item.ProductID,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		Subtotal:    item.Subtotal(),
		ProductName: item.ProductName,
	}
}

type CreateOrderRequest struct {
	DeliveryAddress  string  `json:"direccionEnvio"`
	PaymentMethod    string  `json:"metodoPago"`
	PaymentReference *string `json:"referenciaPago"`
	Notes            *string `json:"notas"`
}

type UpdateStatusRequest struct {
	Status OrderStatus `json:"estado"`
}

// OrderStatusEvent is the body published on orden.status.updated.
type OrderStatusEvent struct {
	OrderID   int         `json:"id"`
	Status    OrderStatus `json:"estado"`
	UserID    int         `json:"usuarioId"`
	UpdatedAt time.Time   `json:"fechaActualizacion"`
}

// PaymentCheckEvent is scheduled on the delay exchange when an order is created.
type PaymentCheckEvent struct {
	OrderID   int       `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
