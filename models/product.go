package models

import "github.com/shopspring/decimal"

// Product is the product service's view of a catalog entry.
type Product struct {
	ID    int             `json:"id"`
	Name  string          `json:"nombre"`
	Price decimal.Decimal `json:"precio"`
	Stock int             `json:"stock"`
}

type StockOperation string

const (
	StockIncrement StockOperation = "incrementar"
	StockDecrement StockOperation = "decrementar"
)
