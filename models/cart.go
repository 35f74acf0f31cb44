package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        int        `json:"id"`
	UserID    int        `json:"usuarioId"`
	Active    bool       `json:"activo"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Items     []CartItem `json:"items"`
}

// CartItem keeps the price and name the product had when it was added.
type CartItem struct {
	ID          int             `json:"id"`
	CartID      int             `json:"carritoId"`
	ProductID   int             `json:"productoId"`
	Quantity    int             `json:"cantidad"`
	UnitPrice   decimal.Decimal `json:"precioUnitario"`
	ProductName string          `json:"nombreProducto"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type AddItemRequest struct {
	ProductID int  `json:"productoId"`
	Quantity  *int `json:"cantidad"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"cantidad"`
}
