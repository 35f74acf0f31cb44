package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ordenes-service/models"
)

const cartColumns = `id, usuario_id, activo, created_at, updated_at`

const cartItemColumns = `id, carrito_id, producto_id, cantidad, precio_unitario, nombre_producto, created_at, updated_at`

func scanCart(row interface{ Scan(...any) error }) (models.Cart, error) {
	var c models.Cart
	err := row.Scan(&c.ID, &c.UserID, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanCartItem(row interface{ Scan(...any) error }) (models.CartItem, error) {
	var i models.CartItem
	err := row.Scan(&i.ID, &i.CartID, &i.ProductID, &i.Quantity, &i.UnitPrice, &i.ProductName, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (q *Queries) GetActiveCart(ctx context.Context, userID int) (models.Cart, error) {
	c, err := scanCart(q.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carritos WHERE usuario_id = ? AND activo = TRUE`, userID))
	if err != nil {
		return models.Cart{}, fmt.Errorf("get active cart: %w", err)
	}
	return c, nil
}

func (q *Queries) GetActiveCartForUpdate(ctx context.Context, userID int) (models.Cart, error) {
	c, err := scanCart(q.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carritos WHERE usuario_id = ? AND activo = TRUE FOR UPDATE`, userID))
	if err != nil {
		return models.Cart{}, fmt.Errorf("lock active cart: %w", err)
	}
	return c, nil
}

func (q *Queries) CreateCart(ctx context.Context, userID int) (models.Cart, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO carritos (usuario_id, activo, created_at, updated_at) VALUES (?, TRUE, ?, ?)`,
		userID, now, now)
	if err != nil {
		if isDuplicateEntry(err) {
			return models.Cart{}, ErrActiveCartExists
		}
		return models.Cart{}, fmt.Errorf("create cart: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Cart{}, fmt.Errorf("create cart: %w", err)
	}

	return models.Cart{
		ID:        int(id),
		UserID:    userID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     []models.CartItem{},
	}, nil
}

// GetCartWithItems always returns a non-nil Items slice.
func (q *Queries) GetCartWithItems(ctx context.Context, cartID int) (models.Cart, error) {
	c, err := scanCart(q.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carritos WHERE id = ?`, cartID))
	if err != nil {
		return models.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+cartItemColumns+` FROM items_carrito WHERE carrito_id = ? ORDER BY id`, cartID)
	if err != nil {
		return models.Cart{}, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	c.Items = []models.CartItem{}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return models.Cart{}, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, item)
	}
	if err := rows.Err(); err != nil {
		return models.Cart{}, fmt.Errorf("list cart items: %w", err)
	}
	return c, nil
}

func (q *Queries) GetCartItem(ctx context.Context, cartID, itemID int) (models.CartItem, error) {
	item, err := scanCartItem(q.db.QueryRowContext(ctx,
		`SELECT `+cartItemColumns+` FROM items_carrito WHERE id = ? AND carrito_id = ?`, itemID, cartID))
	if err != nil {
		return models.CartItem{}, fmt.Errorf("get cart item: %w", err)
	}
	return item, nil
}

func (q *Queries) GetCartItemByProductForUpdate(ctx context.Context, cartID, productID int) (models.CartItem, error) {
	item, err := scanCartItem(q.db.QueryRowContext(ctx,
		`SELECT `+cartItemColumns+` FROM items_carrito WHERE carrito_id = ? AND producto_id = ? FOR UPDATE`,
		cartID, productID))
	if err != nil {
		return models.CartItem{}, fmt.Errorf("lock cart item: %w", err)
	}
	return item, nil
}

func (q *Queries) InsertCartItem(ctx context.Context, item models.CartItem) (models.CartItem, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO items_carrito (carrito_id, producto_id, cantidad, precio_unitario, nombre_producto, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.CartID, item.ProductID, item.Quantity, item.UnitPrice, item.ProductName, now, now)
	if err != nil {
		if isDuplicateEntry(err) {
			return models.CartItem{}, ErrCartItemExists
		}
		return models.CartItem{}, fmt.Errorf("insert cart item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.CartItem{}, fmt.Errorf("insert cart item: %w", err)
	}
	item.ID = int(id)
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (q *Queries) UpdateCartItemQuantity(ctx context.Context, itemID, quantity int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE items_carrito SET cantidad = ?, updated_at = ? WHERE id = ?`, quantity, q.now(), itemID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return nil
}

// DeleteCartItem returns the number of deleted rows; zero means no such item
// in that cart.
func (q *Queries) DeleteCartItem(ctx context.Context, cartID, itemID int) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM items_carrito WHERE id = ? AND carrito_id = ?`, itemID, cartID)
	if err != nil {
		return 0, fmt.Errorf("delete cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete cart item: %w", err)
	}
	return n, nil
}

func (q *Queries) ClearCartItems(ctx context.Context, cartID int) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM items_carrito WHERE carrito_id = ?`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (q *Queries) DeactivateCart(ctx context.Context, cartID int) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE carritos SET activo = FALSE, updated_at = ? WHERE id = ? AND activo = TRUE`, q.now(), cartID)
	if err != nil {
		return fmt.Errorf("deactivate cart: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deactivate cart: %w", sql.ErrNoRows)
	}
	return nil
}
