package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"ordenes-service/models"
)

const mysqlDuplicateEntry = 1062

// ErrActiveCartExists is returned by CreateCart when another request created
// the user's active cart first.
var ErrActiveCartExists = errors.New("active cart already exists")

// ErrCartItemExists is returned by InsertCartItem when the product was added
// to the cart by a concurrent request.
var ErrCartItemExists = errors.New("cart item already exists")

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier is every statement the services run, inside or outside a transaction.
// Row lookups return sql.ErrNoRows (wrapped) when nothing matches.
type Querier interface {
	GetActiveCart(ctx context.Context, userID int) (models.Cart, error)
	GetActiveCartForUpdate(ctx context.Context, userID int) (models.Cart, error)
	CreateCart(ctx context.Context, userID int) (models.Cart, error)
	GetCartWithItems(ctx context.Context, cartID int) (models.Cart, error)
	GetCartItem(ctx context.Context, cartID, itemID int) (models.CartItem, error)
	GetCartItemByProductForUpdate(ctx context.Context, cartID, productID int) (models.CartItem, error)
	InsertCartItem(ctx context.Context, item models.CartItem) (models.CartItem, error)
	UpdateCartItemQuantity(ctx context.Context, itemID, quantity int) error
	DeleteCartItem(ctx context.Context, cartID, itemID int) (int64, error)
	ClearCartItems(ctx context.Context, cartID int) error
	DeactivateCart(ctx context.Context, cartID int) error

	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID int) (models.Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID int) (models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int) ([]models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int, status models.OrderStatus, deliveredAt *time.Time) error
}

// TxStore runs statements directly or inside ExecTx.
type TxStore interface {
	Querier
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}

type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type Store struct {
	*Queries
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		Queries: New(db),
		db:      db,
	}
}

// ExecTx commits when fn returns nil and rolls back otherwise.
func (s *Store) ExecTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	q := &Queries{db: tx, now: s.now}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
