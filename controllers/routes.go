package controllers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the cart and order endpoints behind auth.
func RegisterRoutes(r gin.IRouter, auth gin.HandlerFunc, carts *CartController, orders *OrderController) {
	cart := r.Group("/carrito", auth)
	{
		cart.GET("", carts.GetCart)
		cart.POST("/agregar", carts.AddItem)
		cart.PUT("/item/:itemId", carts.UpdateItem)
		cart.DELETE("/item/:itemId", carts.RemoveItem)
		cart.DELETE("/vaciar", carts.ClearCart)
	}

	order := r.Group("/ordenes", auth)
	{
		order.POST("", orders.CreateOrder)
		order.POST("/checkout", orders.Checkout)
		order.GET("", orders.GetUserOrders)
		order.GET("/admin", orders.GetAllOrders)
		order.GET("/:id", orders.GetOrderDetails)
		order.PUT("/:id/estado", orders.UpdateOrderStatus)
	}
}
