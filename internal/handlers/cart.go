// internal/handlers/cart.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

type CartHandler struct {
	cartService  *services.CartService
	orderService *services.OrderService
}

func NewCartHandler(cartService *services.CartService, orderService *services.OrderService) *CartHandler {
	return &CartHandler{
		cartService:  cartService,
		orderService: orderService,
	}
}

// GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	cart, err := h.cartService.GetCart(userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"cart":        cart,
		"item_count":  cart.ItemCount(),
		"total_price": cart.TotalPrice(),
	})
}

// POST /cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	cart, err := h.cartService.AddItem(userID, &req)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"cart": cart,
	})
}

// PUT /cart/items/:id
func (h *CartHandler) UpdateItemQuantity(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Quantity *int `json:"quantity" validate:"required,min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity == nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	cart, err := h.cartService.UpdateItemQuantity(userID, itemID, *req.Quantity)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"cart": cart,
	})
}

// DELETE /cart/items/:id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	itemID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	cart, err := h.cartService.RemoveItem(userID, itemID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"cart": cart,
	})
}

// DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.cartService.ClearCart(userID); err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"cleared": true,
	})
}

// GET /cart/stock-check
func (h *CartHandler) ValidateStock(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.orderService.ValidateCartStock(userID); err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"available": true,
	})
}
