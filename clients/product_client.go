package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"ordenes-service/apperrors"
	"ordenes-service/middlewares"
	"ordenes-service/models"
)

// ProductClient talks to the product service, which owns stock and prices.
type ProductClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewProductClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ProductClient {
	return &ProductClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

type stockUpdateRequest struct {
	Quantity  int                   `json:"cantidad"`
	Operation models.StockOperation `json:"operacion"`
}

type errorBody struct {
	Error string `json:"error"`
}

// GetProduct returns a NotFound error for unknown products and a Service
// error for any other failure.
func (c *ProductClient) GetProduct(ctx context.Context, productID int, token string) (models.Product, error) {
	var product models.Product
	err := c.do(ctx, http.MethodGet, productID, nil, token, &product)
	middlewares.RecordStockCall("get_product", err == nil)
	if err != nil {
		c.logger.Warn("product lookup failed", zap.Int("producto_id", productID), zap.Error(err))
		return models.Product{}, err
	}
	return product, nil
}

func (c *ProductClient) SetStock(ctx context.Context, productID, quantity int, op models.StockOperation, token string) error {
	body := stockUpdateRequest{Quantity: quantity, Operation: op}
	err := c.do(ctx, http.MethodPut, productID, body, token, nil)
	middlewares.RecordStockCall("set_stock_"+string(op), err == nil)
	if err != nil {
		c.logger.Warn("stock update failed",
			zap.Int("producto_id", productID),
			zap.Int("cantidad", quantity),
			zap.String("operacion", string(op)),
			zap.Error(err))
		return err
	}
	return nil
}

func (c *ProductClient) do(ctx context.Context, method string, productID int, in any, token string, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode stock request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	url := c.baseURL + "/productos/" + strconv.Itoa(productID)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build product request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Service("Error al comunicarse con el servicio de productos", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("Producto no encontrado")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
		cause := fmt.Errorf("product service returned %d", resp.StatusCode)
		if eb.Error != "" {
			cause = fmt.Errorf("%w: %s", cause, eb.Error)
		}
		return apperrors.Service("Error en el servicio de productos", cause)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Service("Respuesta invalida del servicio de productos", err)
	}
	return nil
}
