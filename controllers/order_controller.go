package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"ordenes-service/middlewares"
	"ordenes-service/models"
)

type OrderManager interface {
	CreateOrder(ctx context.Context, identity models.Identity, req models.CreateOrderRequest) (models.Order, error)
	CheckoutCart(ctx context.Context, identity models.Identity, req models.CreateOrderRequest) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, identity models.Identity, orderID int, next models.OrderStatus) (models.Order, error)
	ListOrdersForUser(ctx context.Context, identity models.Identity) ([]models.Order, error)
	GetOrderByID(ctx context.Context, identity models.Identity, orderID int) (models.Order, error)
	ListAllOrders(ctx context.Context, identity models.Identity) ([]models.Order, error)
}

type OrderController struct {
	orders OrderManager
	logger *zap.Logger
}

func NewOrderController(orders OrderManager, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

func (oc *OrderController) CreateOrder(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("create", succeeded(c)) }()
	oc.create(c, oc.orders.CreateOrder)
}

func (oc *OrderController) Checkout(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("checkout", succeeded(c)) }()
	oc.create(c, oc.orders.CheckoutCart)
}

func (oc *OrderController) create(c *gin.Context, create func(context.Context, models.Identity, models.CreateOrderRequest) (models.Order, error)) {
	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
		return
	}

	order, err := create(c.Request.Context(), identity, req)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mensaje": "Orden creada con éxito", "orden": order})
}

func (oc *OrderController) GetUserOrders(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("list", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	orders, err := oc.orders.ListOrdersForUser(c.Request.Context(), identity)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetAllOrders(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("list_all", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	orders, err := oc.orders.ListAllOrders(c.Request.Context(), identity)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (oc *OrderController) GetOrderDetails(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("details", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	orderID, ok := intParam(c, "id", "ID de orden inválido")
	if !ok {
		return
	}

	order, err := oc.orders.GetOrderByID(c.Request.Context(), identity, orderID)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (oc *OrderController) UpdateOrderStatus(c *gin.Context) {
	defer func() { middlewares.RecordOrderOperation("update_status", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	orderID, ok := intParam(c, "id", "ID de orden inválido")
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "El estado es requerido"})
		return
	}

	order, err := oc.orders.UpdateOrderStatus(c.Request.Context(), identity, orderID, req.Status)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Estado de la orden actualizado correctamente", "orden": order})
}
