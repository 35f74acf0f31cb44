package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"ordenes-service/models"
)

const orderColumns = `o.id, o.usuario_id, o.total, o.estado, o.fecha_entrega, o.direccion_envio,
	o.metodo_pago, o.referencia_pago, o.notas, o.created_at, o.updated_at`

const detailColumns = `d.id, d.orden_id, d.producto_id, d.cantidad, d.precio_unitario, d.subtotal,
	d.nombre_producto, d.created_at, d.updated_at`

type orderRow struct {
	order       models.Order
	deliveredAt sql.NullTime
	reference   sql.NullString
	notes       sql.NullString
}

func (r *orderRow) dest() []any {
	o := &r.order
	return []any{&o.ID, &o.UserID, &o.Total, &o.Status, &r.deliveredAt, &o.DeliveryAddress,
		&o.PaymentMethod, &r.reference, &r.notes, &o.CreatedAt, &o.UpdatedAt}
}

func (r *orderRow) toModel() models.Order {
	o := r.order
	if r.deliveredAt.Valid {
		t := r.deliveredAt.Time
		o.DeliveredAt = &t
	}
	if r.reference.Valid {
		s := r.reference.String
		o.PaymentReference = &s
	}
	if r.notes.Valid {
		s := r.notes.String
		o.Notes = &s
	}
	o.Details = []models.OrderDetail{}
	return o
}

// detailRow scans the nullable side of the orders LEFT JOIN.
type detailRow struct {
	id, orderID, productID, quantity sql.NullInt64
	unitPrice, subtotal              decimal.NullDecimal
	name                             sql.NullString
	createdAt, updatedAt             sql.NullTime
}

func (r *detailRow) dest() []any {
	return []any{&r.id, &r.orderID, &r.productID, &r.quantity, &r.unitPrice, &r.subtotal,
		&r.name, &r.createdAt, &r.updatedAt}
}

func (r *detailRow) toModel() (models.OrderDetail, bool) {
	if !r.id.Valid {
		return models.OrderDetail{}, false
	}
	return models.OrderDetail{
		ID:          int(r.id.Int64),
		OrderID:     int(r.orderID.Int64),
		ProductID:   int(r.productID.Int64),
		Quantity:    int(r.quantity.Int64),
		UnitPrice:   r.unitPrice.Decimal,
		Subtotal:    r.subtotal.Decimal,
		ProductName: r.name.String,
		CreatedAt:   r.createdAt.Time,
		UpdatedAt:   r.updatedAt.Time,
	}, true
}

// CreateOrder inserts the header and its details. Subtotals are taken as given.
func (q *Queries) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO ordenes (usuario_id, total, estado, direccion_envio, metodo_pago, referencia_pago, notas, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Total, order.Status, order.DeliveryAddress, order.PaymentMethod,
		order.PaymentReference, order.Notes, now, now)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order id: %w", err)
	}
	order.ID = int(id)
	order.CreatedAt = now
	order.UpdatedAt = now

	details := make([]models.OrderDetail, 0, len(order.Details))
	for i, d := range order.Details {
		res, err := q.db.ExecContext(ctx,
			`INSERT INTO detalles_orden (orden_id, producto_id, cantidad, precio_unitario, subtotal, nombre_producto, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, d.ProductID, d.Quantity, d.UnitPrice, d.Subtotal, d.ProductName, now, now)
		if err != nil {
			return models.Order{}, fmt.Errorf("failed to insert detail %d: %w", i, err)
		}
		detailID, err := res.LastInsertId()
		if err != nil {
			return models.Order{}, fmt.Errorf("failed to insert detail %d: %w", i, err)
		}
		d.ID = int(detailID)
		d.OrderID = order.ID
		d.CreatedAt = now
		d.UpdatedAt = now
		details = append(details, d)
	}
	order.Details = details
	return order, nil
}

// GetOrderForUpdate locks the order row until the enclosing transaction ends.
func (q *Queries) GetOrderForUpdate(ctx context.Context, orderID int) (models.Order, error) {
	var r orderRow
	err := q.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM ordenes o WHERE o.id = ? FOR UPDATE`, orderID).Scan(r.dest()...)
	if err != nil {
		return models.Order{}, fmt.Errorf("lock order: %w", err)
	}
	order := r.toModel()

	details, err := q.listDetails(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	order.Details = details
	return order, nil
}

func (q *Queries) listDetails(ctx context.Context, orderID int) ([]models.OrderDetail, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+detailColumns+` FROM detalles_orden d WHERE d.orden_id = ? ORDER BY d.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order details: %w", err)
	}
	defer rows.Close()

	details := []models.OrderDetail{}
	for rows.Next() {
		var r detailRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		if d, ok := r.toModel(); ok {
			details = append(details, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order details: %w", err)
	}
	return details, nil
}

func (q *Queries) GetOrderForUser(ctx context.Context, orderID, userID int) (models.Order, error) {
	orders, err := q.queryOrders(ctx, `WHERE o.id = ? AND o.usuario_id = ?`, orderID, userID)
	if err != nil {
		return models.Order{}, err
	}
	if len(orders) == 0 {
		return models.Order{}, fmt.Errorf("get order: %w", sql.ErrNoRows)
	}
	return orders[0], nil
}

func (q *Queries) ListOrdersByUser(ctx context.Context, userID int) ([]models.Order, error) {
	return q.queryOrders(ctx, `WHERE o.usuario_id = ?`, userID)
}

func (q *Queries) ListOrders(ctx context.Context) ([]models.Order, error) {
	return q.queryOrders(ctx, ``)
}

// queryOrders joins headers with details, newest order first.
func (q *Queries) queryOrders(ctx context.Context, where string, args ...any) ([]models.Order, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+orderColumns+`, `+detailColumns+`
		FROM ordenes o
		LEFT JOIN detalles_orden d ON d.orden_id = o.id
		`+where+`
		ORDER BY o.created_at DESC, o.id DESC, d.id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	index := make(map[int]int)
	for rows.Next() {
		var (
			or orderRow
			dr detailRow
		)
		if err := rows.Scan(append(or.dest(), dr.dest()...)...); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		pos, seen := index[or.order.ID]
		if !seen {
			pos = len(orders)
			index[or.order.ID] = pos
			orders = append(orders, or.toModel())
		}
		if d, ok := dr.toModel(); ok {
			orders[pos].Details = append(orders[pos].Details, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus leaves fecha_entrega untouched when deliveredAt is nil.
func (q *Queries) UpdateOrderStatus(ctx context.Context, orderID int, status models.OrderStatus, deliveredAt *time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE ordenes SET estado = ?, fecha_entrega = COALESCE(?, fecha_entrega), updated_at = ? WHERE id = ?`,
		status, deliveredAt, q.now(), orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update order status: %w", sql.ErrNoRows)
	}
	return nil
}
