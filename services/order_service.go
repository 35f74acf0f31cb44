package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/middlewares"
	"ordenes-service/models"
	"ordenes-service/rabbitmq"
	"ordenes-service/repository"
)

var (
	errOrderNotFound = apperrors.NotFound("Orden no encontrada")
	errAdminOnly     = apperrors.Forbidden("Solo los administradores pueden realizar esta operación")
	errNoIdentity    = apperrors.Auth("Usuario no autenticado correctamente")
)

type OrderServiceOptions struct {
	// PaymentCheckDelay schedules an auto-cancel check for new orders; zero disables it.
	PaymentCheckDelay time.Duration
	// ServiceToken authorizes stock calls made by the payment-check consumer.
	ServiceToken TokenSource
}

// OrderService runs the order state machine and its compensations.
type OrderService struct {
	store    repository.TxStore
	stock    StockOracle
	notifier *Notifier
	logger   *zap.Logger
	opts     OrderServiceOptions
	now      func() time.Time
}

func NewOrderService(store repository.TxStore, stock StockOracle, notifier *Notifier, logger *zap.Logger, opts OrderServiceOptions) *OrderService {
	return &OrderService{
		store:    store,
		stock:    stock,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func validateCheckout(identity models.Identity, req models.CreateOrderRequest) error {
	if identity.UserID <= 0 {
		return errNoIdentity
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return apperrors.Validation("La dirección de envío es requerida")
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return apperrors.Validation("El método de pago es requerido")
	}
	return nil
}

func newPendingOrder(identity models.Identity, req models.CreateOrderRequest) models.Order {
	return models.Order{
		UserID:           identity.UserID,
		Total:            decimal.Zero,
		Status:           models.StatusPending,
		DeliveryAddress:  strings.TrimSpace(req.DeliveryAddress),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		Details:          []models.OrderDetail{},
	}
}

// CreateOrder records a pending order with total 0 and no details. It reads
// neither the cart nor stock; CheckoutCart is the cart-backed variant.
func (s *OrderService) CreateOrder(ctx context.Context, identity models.Identity, req models.CreateOrderRequest) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.create")
	defer span.End()

	if err := validateCheckout(identity, req); err != nil {
		return models.Order{}, err
	}
	s.logger.Info("creating order", zap.Int("usuario_id", identity.UserID), zap.String("metodo_pago", req.PaymentMethod))

	var order models.Order
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = q.CreateOrder(ctx, newPendingOrder(identity, req))
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	span.SetAttributes(attribute.Int("orden.id", order.ID))

	s.announceCreated(ctx, order)
	return order, nil
}

// CheckoutCart turns the active cart into an order: details are snapshots of
// the cart lines, stock is taken from the product service and the cart is
// deactivated, all before the transaction commits. If a stock decrement
// fails the ones already applied are given back and nothing is committed.
// The same happens to every decrement when the commit itself fails.
func (s *OrderService) CheckoutCart(ctx context.Context, identity models.Identity, req models.CreateOrderRequest) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.checkout")
	defer span.End()

	if err := validateCheckout(identity, req); err != nil {
		return models.Order{}, err
	}

	var (
		order models.Order
		taken bool
	)
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		locked, err := q.GetActiveCartForUpdate(ctx, identity.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errCartNotFound
			}
			return err
		}
		cart, err := q.GetCartWithItems(ctx, locked.ID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return apperrors.Validation("El carrito está vacío")
		}

		pending := newPendingOrder(identity, req)
		for _, item := range cart.Items {
			product, err := s.stock.GetProduct(ctx, item.ProductID, identity.Token)
			if err != nil {
				return err
			}
			if product.Stock < item.Quantity {
				return apperrors.Stock(product.Stock)
			}
			d := models.NewOrderDetail(item)
			pending.Details = append(pending.Details, d)
			pending.Total = pending.Total.Add(d.Subtotal)
		}

		order, err = q.CreateOrder(ctx, pending)
		if err != nil {
			return err
		}
		if err := q.DeactivateCart(ctx, cart.ID); err != nil {
			return err
		}
		if err := s.takeStock(ctx, order.ID, order.Details, identity.Token); err != nil {
			return err
		}
		taken = true
		return nil
	})
	if err != nil {
		if taken {
			// the commit failed after stock left the product service
			s.restoreStock(ctx, order.ID, order.Details, identity.Token)
		}
		return models.Order{}, err
	}
	span.SetAttributes(attribute.Int("orden.id", order.ID), attribute.Int("detalles", len(order.Details)))
	s.logger.Info("cart checked out",
		zap.Int("usuario_id", identity.UserID),
		zap.Int("orden_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)))

	s.announceCreated(ctx, order)
	return order, nil
}

func (s *OrderService) takeStock(ctx context.Context, orderID int, details []models.OrderDetail, token string) error {
	for i, d := range details {
		if err := s.stock.SetStock(ctx, d.ProductID, d.Quantity, models.StockDecrement, token); err != nil {
			s.restoreStock(ctx, orderID, details[:i], token)
			return err
		}
	}
	return nil
}

func (s *OrderService) announceCreated(ctx context.Context, order models.Order) {
	s.notifier.Notify(ctx, rabbitmq.TopicOrderCreated, order)
	s.notifier.Schedule(ctx, rabbitmq.TopicPaymentCheck,
		models.PaymentCheckEvent{OrderID: order.ID, CreatedAt: order.CreatedAt},
		s.opts.PaymentCheckDelay)
}

// UpdateOrderStatus moves an order along the state machine. The order row is
// locked for the whole transaction. Cancelling a pending or paid order first
// gives each detail's quantity back to the product service using the caller's
// token; those calls are outside the transaction and a failed one does not
// stop the transition.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, identity models.Identity, orderID int, next models.OrderStatus) (models.Order, error) {
	return s.transition(ctx, orderID, next, identity.Token, nil)
}

// CancelUnpaidOrder cancels the order if it is still pending. It reports
// whether the order was cancelled.
func (s *OrderService) CancelUnpaidOrder(ctx context.Context, orderID int) (bool, error) {
	var token string
	if s.opts.ServiceToken != nil {
		t, err := s.opts.ServiceToken()
		if err != nil {
			return false, fmt.Errorf("service token: %w", err)
		}
		token = t
	}

	_, err := s.transition(ctx, orderID, models.StatusCancelled, token, func(current models.OrderStatus) bool {
		return current == models.StatusPending
	})
	if errors.Is(err, errSkipped) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("auto-cancelled unpaid order", zap.Int("orden_id", orderID))
	return true, nil
}

var errSkipped = errors.New("transition skipped")

func (s *OrderService) transition(ctx context.Context, orderID int, next models.OrderStatus, token string, precondition func(models.OrderStatus) bool) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "order.update_status")
	defer span.End()
	span.SetAttributes(attribute.Int("orden.id", orderID), attribute.String("orden.estado", string(next)))

	if !next.Valid() {
		return models.Order{}, apperrors.Validation(fmt.Sprintf("Estado inválido: %q", next))
	}

	var order models.Order
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		var err error
		order, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errOrderNotFound
			}
			return err
		}

		if precondition != nil && !precondition(order.Status) {
			return errSkipped
		}
		if order.Status.Terminal() {
			return apperrors.Conflict(fmt.Sprintf("La orden ya está %s y no admite cambios de estado", order.Status))
		}
		if !order.Status.CanTransitionTo(next) {
			return apperrors.Conflict(fmt.Sprintf("No se puede cambiar el estado de la orden de %s a %s", order.Status, next))
		}

		if next == models.StatusCancelled && order.Status.RestoresStock() {
			s.restoreStock(ctx, order.ID, order.Details, token)
		}

		now := s.now()
		var deliveredAt *time.Time
		if next == models.StatusDelivered {
			deliveredAt = &now
			order.DeliveredAt = &now
		}
		if err := q.UpdateOrderStatus(ctx, order.ID, next, deliveredAt); err != nil {
			return err
		}
		order.Status = next
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.notifier.Notify(ctx, rabbitmq.TopicOrderStatusUpdated, models.OrderStatusEvent{
		OrderID:   order.ID,
		Status:    order.Status,
		UserID:    order.UserID,
		UpdatedAt: order.UpdatedAt,
	})
	return order, nil
}

// restoreStock is best effort: every detail gets exactly one increment call
// and failures are only logged. It returns the number of failed calls.
func (s *OrderService) restoreStock(ctx context.Context, orderID int, details []models.OrderDetail, token string) int {
	failed := 0
	for _, d := range details {
		if err := s.stock.SetStock(ctx, d.ProductID, d.Quantity, models.StockIncrement, token); err != nil {
			failed++
			middlewares.RecordStockRestoreFailure()
			s.logger.Error("stock restoration failed",
				zap.Int("orden_id", orderID),
				zap.Int("producto_id", d.ProductID),
				zap.Int("cantidad", d.Quantity),
				zap.Error(err))
		}
	}
	if failed > 0 {
		s.logger.Warn("stock partially restored",
			zap.Int("orden_id", orderID),
			zap.Int("fallidos", failed),
			zap.Int("total", len(details)))
	}
	return failed
}

func (s *OrderService) ListOrdersForUser(ctx context.Context, identity models.Identity) ([]models.Order, error) {
	if !identity.IsAdmin() {
		return nil, errAdminOnly
	}
	if identity.UserID <= 0 {
		return nil, apperrors.Validation("No se pudo identificar al usuario. Verifica tu token de autenticación.")
	}
	return s.store.ListOrdersByUser(ctx, identity.UserID)
}

func (s *OrderService) GetOrderByID(ctx context.Context, identity models.Identity, orderID int) (models.Order, error) {
	if !identity.IsAdmin() {
		return models.Order{}, errAdminOnly
	}
	order, err := s.store.GetOrderForUser(ctx, orderID, identity.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, errOrderNotFound
		}
		return models.Order{}, err
	}
	return order, nil
}

func (s *OrderService) ListAllOrders(ctx context.Context, identity models.Identity) ([]models.Order, error) {
	if !identity.IsAdmin() {
		return nil, apperrors.Forbidden("No tiene permisos para realizar esta acción")
	}
	return s.store.ListOrders(ctx)
}
