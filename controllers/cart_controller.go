package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"ordenes-service/middlewares"
	"ordenes-service/models"
)

type CartManager interface {
	GetOrCreateActiveCart(ctx context.Context, userID int) (models.Cart, error)
	AddItem(ctx context.Context, identity models.Identity, productID int, quantity *int) (models.Cart, error)
	UpdateItemQuantity(ctx context.Context, identity models.Identity, itemID, quantity int) (models.Cart, error)
	RemoveItem(ctx context.Context, identity models.Identity, itemID int) (models.Cart, error)
	ClearCart(ctx context.Context, identity models.Identity) (models.Cart, error)
}

type CartController struct {
	carts  CartManager
	logger *zap.Logger
}

func NewCartController(carts CartManager, logger *zap.Logger) *CartController {
	return &CartController{carts: carts, logger: logger}
}

func (cc *CartController) GetCart(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("get", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	cart, err := cc.carts.GetOrCreateActiveCart(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (cc *CartController) AddItem(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("add_item", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	var req models.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
		return
	}

	cart, err := cc.carts.AddItem(c.Request.Context(), identity, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mensaje": "Producto agregado al carrito", "carrito": cart})
}

func (cc *CartController) UpdateItem(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("update_item", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	itemID, ok := intParam(c, "itemId", "ID de item inválido")
	if !ok {
		return
	}

	var req models.UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cuerpo de la solicitud inválido"})
		return
	}

	cart, err := cc.carts.UpdateItemQuantity(c.Request.Context(), identity, itemID, req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Cantidad actualizada correctamente", "carrito": cart})
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("remove_item", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}
	itemID, ok := intParam(c, "itemId", "ID de item inválido")
	if !ok {
		return
	}

	cart, err := cc.carts.RemoveItem(c.Request.Context(), identity, itemID)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Producto eliminado del carrito", "carrito": cart})
}

func (cc *CartController) ClearCart(c *gin.Context) {
	defer func() { middlewares.RecordCartOperation("clear", succeeded(c)) }()

	identity, ok := identityOrAbort(c)
	if !ok {
		return
	}

	cart, err := cc.carts.ClearCart(c.Request.Context(), identity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mensaje": "Carrito vaciado correctamente",
		"carrito": gin.H{"id": cart.ID, "usuarioId": cart.UserID, "items": cart.Items},
	})
}
