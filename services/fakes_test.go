package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"ordenes-service/models"
	"ordenes-service/repository"
)

// memStore is an in-memory repository.TxStore. Transactions are serialized and
// roll back by restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID int
	carts  map[int]models.Cart
	items  map[int]models.CartItem
	orders map[int]models.Order

	// lockedOrders counts GetOrderForUpdate calls.
	lockedOrders int
	commits      int
	rollbacks    int
}

func newMemStore() *memStore {
	return &memStore{
		carts:  map[int]models.Cart{},
		items:  map[int]models.CartItem{},
		orders: map[int]models.Order{},
	}
}

var _ repository.TxStore = (*memStore)(nil)

func (m *memStore) id() int {
	m.nextID++
	return m.nextID
}

func (m *memStore) ExecTx(ctx context.Context, fn func(q repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.rollbacks++
		m.mu.Unlock()
		return err
	}
	m.mu.Lock()
	m.commits++
	m.mu.Unlock()
	return nil
}

type memSnapshot struct {
	nextID int
	carts  map[int]models.Cart
	items  map[int]models.CartItem
	orders map[int]models.Order
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		nextID: m.nextID,
		carts:  map[int]models.Cart{},
		items:  map[int]models.CartItem{},
		orders: map[int]models.Order{},
	}
	for k, v := range m.carts {
		s.carts[k] = v
	}
	for k, v := range m.items {
		s.items[k] = v
	}
	for k, v := range m.orders {
		v.Details = append([]models.OrderDetail(nil), v.Details...)
		s.orders[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.nextID = s.nextID
	m.carts = s.carts
	m.items = s.items
	m.orders = s.orders
}

func (m *memStore) activeCartLocked(userID int) (models.Cart, error) {
	for _, c := range m.carts {
		if c.UserID == userID && c.Active {
			return c, nil
		}
	}
	return models.Cart{}, fmt.Errorf("get active cart: %w", sql.ErrNoRows)
}

func (m *memStore) GetActiveCart(ctx context.Context, userID int) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCartLocked(userID)
}

func (m *memStore) GetActiveCartForUpdate(ctx context.Context, userID int) (models.Cart, error) {
	return m.GetActiveCart(ctx, userID)
}

func (m *memStore) CreateCart(ctx context.Context, userID int) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.activeCartLocked(userID); err == nil {
		return models.Cart{}, repository.ErrActiveCartExists
	}
	now := time.Now()
	c := models.Cart{ID: m.id(), UserID: userID, Active: true, CreatedAt: now, UpdatedAt: now}
	m.carts[c.ID] = c
	c.Items = []models.CartItem{}
	return c, nil
}

func (m *memStore) GetCartWithItems(ctx context.Context, cartID int) (models.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok {
		return models.Cart{}, fmt.Errorf("get cart: %w", sql.ErrNoRows)
	}
	c.Items = []models.CartItem{}
	for _, it := range m.items {
		if it.CartID == cartID {
			c.Items = append(c.Items, it)
		}
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ID < c.Items[j].ID })
	return c, nil
}

func (m *memStore) GetCartItem(ctx context.Context, cartID, itemID int) (models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.CartID != cartID {
		return models.CartItem{}, fmt.Errorf("get cart item: %w", sql.ErrNoRows)
	}
	return it, nil
}

func (m *memStore) GetCartItemByProductForUpdate(ctx context.Context, cartID, productID int) (models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.CartID == cartID && it.ProductID == productID {
			return it, nil
		}
	}
	return models.CartItem{}, fmt.Errorf("lock cart item: %w", sql.ErrNoRows)
}

func (m *memStore) InsertCartItem(ctx context.Context, item models.CartItem) (models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.CartID == item.CartID && it.ProductID == item.ProductID {
			return models.CartItem{}, repository.ErrCartItemExists
		}
	}
	item.ID = m.id()
	m.items[item.ID] = item
	return item, nil
}

func (m *memStore) UpdateCartItemQuantity(ctx context.Context, itemID, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok {
		return fmt.Errorf("update cart item: %w", sql.ErrNoRows)
	}
	it.Quantity = quantity
	m.items[itemID] = it
	return nil
}

func (m *memStore) DeleteCartItem(ctx context.Context, cartID, itemID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.CartID != cartID {
		return 0, nil
	}
	delete(m.items, itemID)
	return 1, nil
}

func (m *memStore) ClearCartItems(ctx context.Context, cartID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *memStore) DeactivateCart(ctx context.Context, cartID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok || !c.Active {
		return fmt.Errorf("deactivate cart: %w", sql.ErrNoRows)
	}
	c.Active = false
	m.carts[cartID] = c
	return nil
}

func (m *memStore) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order.ID = m.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	details := make([]models.OrderDetail, 0, len(order.Details))
	for _, d := range order.Details {
		d.ID = m.id()
		d.OrderID = order.ID
		details = append(details, d)
	}
	order.Details = details
	m.orders[order.ID] = order
	return order, nil
}

// putOrder seeds an order as-is.
func (m *memStore) putOrder(order models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.Details == nil {
		order.Details = []models.OrderDetail{}
	}
	m.orders[order.ID] = order
	if order.ID > m.nextID {
		m.nextID = order.ID
	}
}

func (m *memStore) order(id int) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, orderID int) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockedOrders++
	o, ok := m.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("lock order: %w", sql.ErrNoRows)
	}
	return o, nil
}

func (m *memStore) GetOrderForUser(ctx context.Context, orderID, userID int) (models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.UserID != userID {
		return models.Order{}, fmt.Errorf("get order: %w", sql.ErrNoRows)
	}
	return o, nil
}

func (m *memStore) listOrders(match func(models.Order) bool) []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Order{}
	for _, o := range m.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID int) ([]models.Order, error) {
	return m.listOrders(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (m *memStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return m.listOrders(func(models.Order) bool { return true }), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID int, status models.OrderStatus, deliveredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("update order status: %w", sql.ErrNoRows)
	}
	o.Status = status
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	m.orders[orderID] = o
	return nil
}

type stockCall struct {
	ProductID int
	Quantity  int
	Op        models.StockOperation
	Token     string
}

// fakeOracle serves products from memory and records stock mutations.
type fakeOracle struct {
	mu       sync.Mutex
	products map[int]models.Product
	calls    []stockCall
	getCalls int
	failSet  map[int]error
	failGet  error
}

func newFakeOracle(products ...models.Product) *fakeOracle {
	o := &fakeOracle{products: map[int]models.Product{}, failSet: map[int]error{}}
	for _, p := range products {
		o.products[p.ID] = p
	}
	return o
}

func (o *fakeOracle) setStock(productID, stock int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.products[productID]
	p.Stock = stock
	o.products[productID] = p
}

func (o *fakeOracle) GetProduct(ctx context.Context, productID int, token string) (models.Product, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.getCalls++
	if o.failGet != nil {
		return models.Product{}, o.failGet
	}
	p, ok := o.products[productID]
	if !ok {
		return models.Product{}, notFoundProduct
	}
	return p, nil
}

func (o *fakeOracle) SetStock(ctx context.Context, productID, quantity int, op models.StockOperation, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, stockCall{ProductID: productID, Quantity: quantity, Op: op, Token: token})
	if err := o.failSet[productID]; err != nil {
		return err
	}
	p := o.products[productID]
	if op == models.StockIncrement {
		p.Stock += quantity
	} else {
		p.Stock -= quantity
	}
	o.products[productID] = p
	return nil
}

func (o *fakeOracle) stockCalls() []stockCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]stockCall(nil), o.calls...)
}

type published struct {
	Topic   string
	Payload any
	Delay   time.Duration
}

type fakeBus struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Topic: topic, Payload: payload})
	return b.err
}

func (b *fakeBus) PublishDelayed(ctx context.Context, topic string, payload any, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{Topic: topic, Payload: payload, Delay: delay})
	return b.err
}

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Topic)
	}
	return out
}
