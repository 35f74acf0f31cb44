package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *ProductClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewProductClient(srv.URL, time.Second, zap.NewNop())
}

func TestGetProduct(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/productos/5", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":5,"nombre":"Cafe","precio":12.5,"stock":10}`))
	})

	p, err := c.GetProduct(context.Background(), 5, "Bearer abc")

	require.NoError(t, err)
	assert.Equal(t, "Cafe", p.Name)
	assert.Equal(t, 10, p.Stock)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.5")))
}

func TestGetProductNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetProduct(context.Background(), 99, "")

	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGetProductServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"db down"}`))
	})

	_, err := c.GetProduct(context.Background(), 5, "")

	assert.Equal(t, apperrors.KindService, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "db down")
}

func TestGetProductUnreachable(t *testing.T) {
	c := NewProductClient("http://127.0.0.1:1", 200*time.Millisecond, zap.NewNop())

	_, err := c.GetProduct(context.Background(), 5, "")

	assert.Equal(t, apperrors.KindService, apperrors.KindOf(err))
}

func TestSetStockSendsOperation(t *testing.T) {
	var got stockUpdateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/productos/7", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := c.SetStock(context.Background(), 7, 3, models.StockIncrement, "Bearer abc")

	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, models.StockIncrement, got.Operation)
}
