package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"ordenes-service/apperrors"
	"ordenes-service/models"
)

var notFoundProduct = apperrors.NotFound("Producto no encontrado")

var buyer = models.Identity{UserID: 42, Role: "cliente", Token: "Bearer buyer"}

func intPtr(v int) *int { return &v }

func newCartFixture(products ...models.Product) (*CartService, *memStore, *fakeOracle) {
	store := newMemStore()
	oracle := newFakeOracle(products...)
	return NewCartService(store, oracle, zap.NewNop()), store, oracle
}

func coffee(stock int) models.Product {
	return models.Product{ID: 5, Name: "Cafe", Price: decimal.RequireFromString("12.50"), Stock: stock}
}

func TestGetOrCreateActiveCartCreatesEmptyCart(t *testing.T) {
	svc, _, _ := newCartFixture()

	cart, err := svc.GetOrCreateActiveCart(context.Background(), 42)

	require.NoError(t, err)
	assert.Equal(t, 42, cart.UserID)
	assert.True(t, cart.Active)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)

	again, err := svc.GetOrCreateActiveCart(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
}

func TestGetOrCreateActiveCartConcurrentCreatesOne(t *testing.T) {
	svc, store, _ := newCartFixture()

	const N = 50
	ids := make(map[int]struct{})
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < N; i++ {
		g.Go(func() error {
			cart, err := svc.GetOrCreateActiveCart(ctx, 42)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[cart.ID] = struct{}{}
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Len(t, ids, 1)
	assert.Len(t, store.carts, 1)
}

func TestAddItemCreatesCartWithSnapshot(t *testing.T) {
	svc, _, _ := newCartFixture(coffee(10))

	cart, err := svc.AddItem(context.Background(), buyer, 5, intPtr(2))

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	item := cart.Items[0]
	assert.Equal(t, 5, item.ProductID)
	assert.Equal(t, 2, item.Quantity)
	assert.Equal(t, "Cafe", item.ProductName)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("12.50")))
}

func TestAddItemDefaultsToOneUnit(t *testing.T) {
	svc, _, _ := newCartFixture(coffee(10))

	cart, err := svc.AddItem(context.Background(), buyer, 5, nil)

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 1, cart.Items[0].Quantity)
}

func TestAddItemMergesQuantities(t *testing.T) {
	svc, store, _ := newCartFixture(coffee(10))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, buyer, 5, intPtr(2))
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, buyer, 5, intPtr(8))

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 10, cart.Items[0].Quantity)
	assert.Len(t, store.items, 1)
}

func TestAddItemMergeOverStockRollsBack(t *testing.T) {
	svc, store, _ := newCartFixture(coffee(10))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, buyer, 5, intPtr(2))
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, buyer, 5, intPtr(9))

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.KindStock, appErr.Kind)
	assert.Equal(t, 10, appErr.Available)
	assert.Equal(t, 1, store.rollbacks)

	cart, err := svc.GetOrCreateActiveCart(ctx, buyer.UserID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
}

func TestAddItemStockBoundary(t *testing.T) {
	cases := []struct {
		name     string
		existing int
		add      int
		stock    int
		wantErr  bool
	}{
		{"fits exactly", 3, 7, 10, false},
		{"one over", 3, 8, 10, true},
		{"fresh line over stock", 0, 11, 10, true},
		{"fresh line at stock", 0, 10, 10, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newCartFixture(coffee(tc.stock))
			ctx := context.Background()
			if tc.existing > 0 {
				_, err := svc.AddItem(ctx, buyer, 5, intPtr(tc.existing))
				require.NoError(t, err)
			}

			cart, err := svc.AddItem(ctx, buyer, 5, intPtr(tc.add))

			if tc.wantErr {
				assert.Equal(t, apperrors.KindStock, apperrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.existing+tc.add, cart.Items[0].Quantity)
		})
	}
}

func TestAddItemValidation(t *testing.T) {
	svc, _, oracle := newCartFixture(coffee(10))
	ctx := context.Background()

	_, err := svc.AddItem(ctx, buyer, 0, intPtr(1))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.AddItem(ctx, buyer, 5, intPtr(0))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	assert.Zero(t, oracle.getCalls)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc, store, _ := newCartFixture()

	_, err := svc.AddItem(context.Background(), buyer, 77, intPtr(1))

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Empty(t, store.carts)
}

func TestAddItemServiceFailure(t *testing.T) {
	svc, _, oracle := newCartFixture(coffee(10))
	oracle.failGet = apperrors.Service("Error al comunicarse con el servicio de productos", errors.New("timeout"))

	_, err := svc.AddItem(context.Background(), buyer, 5, intPtr(1))

	assert.Equal(t, apperrors.KindService, apperrors.KindOf(err))
}

func TestUpdateItemQuantity(t *testing.T) {
	svc, _, oracle := newCartFixture(coffee(10))
	ctx := context.Background()
	cart, err := svc.AddItem(ctx, buyer, 5, intPtr(2))
	require.NoError(t, err)
	itemID := cart.Items[0].ID

	cart, err = svc.UpdateItemQuantity(ctx, buyer, itemID, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, cart.Items[0].Quantity)

	oracle.setStock(5, 4)
	_, err = svc.UpdateItemQuantity(ctx, buyer, itemID, 5)
	assert.Equal(t, apperrors.KindStock, apperrors.KindOf(err))

	_, err = svc.UpdateItemQuantity(ctx, buyer, itemID, 0)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.UpdateItemQuantity(ctx, buyer, 999, 1)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestUpdateItemQuantityWithoutCart(t *testing.T) {
	svc, _, _ := newCartFixture(coffee(10))

	_, err := svc.UpdateItemQuantity(context.Background(), buyer, 1, 1)

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestUpdateItemQuantityOtherUsersItem(t *testing.T) {
	svc, _, _ := newCartFixture(coffee(10))
	ctx := context.Background()
	other := models.Identity{UserID: 7}
	theirs, err := svc.AddItem(ctx, other, 5, intPtr(1))
	require.NoError(t, err)
	_, err = svc.GetOrCreateActiveCart(ctx, buyer.UserID)
	require.NoError(t, err)

	_, err = svc.UpdateItemQuantity(ctx, buyer, theirs.Items[0].ID, 2)

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRemoveItemAndClear(t *testing.T) {
	svc, _, oracle := newCartFixture(coffee(10), models.Product{ID: 6, Name: "Te", Price: decimal.NewFromInt(3), Stock: 5})
	ctx := context.Background()
	_, err := svc.AddItem(ctx, buyer, 5, intPtr(1))
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, buyer, 6, intPtr(1))
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)

	cart, err = svc.RemoveItem(ctx, buyer, cart.Items[0].ID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	_, err = svc.RemoveItem(ctx, buyer, 999)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	cart, err = svc.ClearCart(ctx, buyer)
	require.NoError(t, err)
	assert.NotNil(t, cart.Items)
	assert.Empty(t, cart.Items)

	assert.Empty(t, oracle.stockCalls(), "cart removals never touch stock")
}

func TestClearCartWithoutCart(t *testing.T) {
	svc, _, _ := newCartFixture()

	_, err := svc.ClearCart(context.Background(), buyer)

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
