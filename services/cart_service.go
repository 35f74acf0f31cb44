package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/models"
	"ordenes-service/repository"
)

var (
	errCartNotFound = apperrors.NotFound("Carrito no encontrado")
	errItemNotFound = apperrors.NotFound("Item no encontrado en el carrito")
)

// CartService keeps one active cart per user and bounds every quantity by the
// stock the product service reports at request time. Nothing is reserved.
type CartService struct {
	store  repository.TxStore
	stock  StockOracle
	logger *zap.Logger
}

func NewCartService(store repository.TxStore, stock StockOracle, logger *zap.Logger) *CartService {
	return &CartService{
		store:  store,
		stock:  stock,
		logger: logger,
	}
}

// GetOrCreateActiveCart returns the user's active cart with its items,
// creating an empty one when there is none.
func (s *CartService) GetOrCreateActiveCart(ctx context.Context, userID int) (models.Cart, error) {
	ctx, span := tracer.Start(ctx, "cart.get_or_create")
	defer span.End()
	span.SetAttributes(attribute.Int("usuario.id", userID))

	cart, err := s.store.GetActiveCart(ctx, userID)
	if err == nil {
		return s.store.GetCartWithItems(ctx, cart.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Cart{}, err
	}

	cart, err = s.store.CreateCart(ctx, userID)
	if errors.Is(err, repository.ErrActiveCartExists) {
		// lost the race against a concurrent creator
		cart, err = s.store.GetActiveCart(ctx, userID)
	}
	if err != nil {
		return models.Cart{}, err
	}
	s.logger.Info("cart created", zap.Int("usuario_id", userID), zap.Int("carrito_id", cart.ID))

	return s.store.GetCartWithItems(ctx, cart.ID)
}

// AddItem adds quantity units of a product, merging with an existing line.
// A nil quantity means one unit.
func (s *CartService) AddItem(ctx context.Context, identity models.Identity, productID int, quantity *int) (models.Cart, error) {
	ctx, span := tracer.Start(ctx, "cart.add_item")
	defer span.End()

	qty := 1
	if quantity != nil {
		qty = *quantity
	}
	if productID <= 0 {
		return models.Cart{}, apperrors.Validation("El ID del producto es requerido")
	}
	if qty < 1 {
		return models.Cart{}, apperrors.Validation("La cantidad debe ser al menos 1")
	}
	span.SetAttributes(
		attribute.Int("usuario.id", identity.UserID),
		attribute.Int("producto.id", productID),
		attribute.Int("cantidad", qty),
	)

	product, err := s.stock.GetProduct(ctx, productID, identity.Token)
	if err != nil {
		return models.Cart{}, err
	}
	if product.Stock < qty {
		return models.Cart{}, apperrors.Stock(product.Stock)
	}

	var cartID int
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		cart, err := lockOrCreateActiveCart(ctx, q, identity.UserID)
		if err != nil {
			return err
		}
		cartID = cart.ID

		item, err := q.GetCartItemByProductForUpdate(ctx, cart.ID, productID)
		switch {
		case err == nil:
			merged := item.Quantity + qty
			if merged > product.Stock {
				return apperrors.Stock(product.Stock)
			}
			return q.UpdateCartItemQuantity(ctx, item.ID, merged)
		case errors.Is(err, sql.ErrNoRows):
			_, err := q.InsertCartItem(ctx, models.CartItem{
				CartID:      cart.ID,
				ProductID:   productID,
				Quantity:    qty,
				UnitPrice:   product.Price,
				ProductName: product.Name,
			})
			if errors.Is(err, repository.ErrCartItemExists) {
				return apperrors.Conflict("El producto se está agregando en otra solicitud, intente nuevamente")
			}
			return err
		default:
			return err
		}
	})
	if err != nil {
		return models.Cart{}, err
	}

	return s.store.GetCartWithItems(ctx, cartID)
}

func lockOrCreateActiveCart(ctx context.Context, q repository.Querier, userID int) (models.Cart, error) {
	cart, err := q.GetActiveCartForUpdate(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Cart{}, err
	}

	cart, err = q.CreateCart(ctx, userID)
	if errors.Is(err, repository.ErrActiveCartExists) {
		return q.GetActiveCartForUpdate(ctx, userID)
	}
	return cart, err
}

// UpdateItemQuantity sets an item's quantity after re-checking live stock.
// The stock read and the write are not atomic.
func (s *CartService) UpdateItemQuantity(ctx context.Context, identity models.Identity, itemID, quantity int) (models.Cart, error) {
	ctx, span := tracer.Start(ctx, "cart.update_quantity")
	defer span.End()

	if quantity < 1 {
		return models.Cart{}, apperrors.Validation("La cantidad debe ser al menos 1")
	}

	cart, err := s.activeCart(ctx, identity.UserID)
	if err != nil {
		return models.Cart{}, err
	}

	item, err := s.store.GetCartItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Cart{}, errItemNotFound
		}
		return models.Cart{}, err
	}

	product, err := s.stock.GetProduct(ctx, item.ProductID, identity.Token)
	if err != nil {
		return models.Cart{}, err
	}
	if quantity > product.Stock {
		return models.Cart{}, apperrors.Stock(product.Stock)
	}

	if err := s.store.UpdateCartItemQuantity(ctx, item.ID, quantity); err != nil {
		return models.Cart{}, err
	}
	return s.store.GetCartWithItems(ctx, cart.ID)
}

// RemoveItem deletes one line. No stock is returned since none was taken.
func (s *CartService) RemoveItem(ctx context.Context, identity models.Identity, itemID int) (models.Cart, error) {
	ctx, span := tracer.Start(ctx, "cart.remove_item")
	defer span.End()

	cart, err := s.activeCart(ctx, identity.UserID)
	if err != nil {
		return models.Cart{}, err
	}

	n, err := s.store.DeleteCartItem(ctx, cart.ID, itemID)
	if err != nil {
		return models.Cart{}, err
	}
	if n == 0 {
		return models.Cart{}, errItemNotFound
	}
	return s.store.GetCartWithItems(ctx, cart.ID)
}

func (s *CartService) ClearCart(ctx context.Context, identity models.Identity) (models.Cart, error) {
	ctx, span := tracer.Start(ctx, "cart.clear")
	defer span.End()

	cart, err := s.activeCart(ctx, identity.UserID)
	if err != nil {
		return models.Cart{}, err
	}

	if err := s.store.ClearCartItems(ctx, cart.ID); err != nil {
		return models.Cart{}, err
	}
	cart.Items = []models.CartItem{}
	return cart, nil
}

func (s *CartService) activeCart(ctx context.Context, userID int) (models.Cart, error) {
	cart, err := s.store.GetActiveCart(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Cart{}, errCartNotFound
		}
		return models.Cart{}, fmt.Errorf("resolve cart: %w", err)
	}
	return cart, nil
}
