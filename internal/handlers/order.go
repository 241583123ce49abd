// internal/handlers/order.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

type OrderHandler struct {
	orderService *services.OrderService
}

func NewOrderHandler(orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// POST /orders/checkout
func (h *OrderHandler) Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	order, err := h.orderService.Checkout(userID, &req)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"order": order,
	})
}

// GET /orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.orderService.ListOrders(userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"order": order,
	})
}

// GET /orders/:id/lines
func (h *OrderHandler) LegacyLines(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"lines": h.orderService.LegacyLines(order),
	})
}

// POST /orders/:id/items
func (h *OrderHandler) MaterializeItems(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	created, err := h.orderService.MaterializeOrderItems(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"items_created": created,
	})
}

// POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, changed, err := h.orderService.CancelOrder(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"order":   order,
		"changed": changed,
	})
}

// POST /orders/:id/refund
func (h *OrderHandler) RefundOrder(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, changed, err := h.orderService.RefundOrder(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"order":   order,
		"changed": changed,
	})
}

// GET /orders/ready/summary
func (h *OrderHandler) ReadySummary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	summary, err := h.orderService.SummarizeReadyOrders(userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"summary": summary,
	})
}

type orderIDsRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1"`
}

// POST /orders/merge
func (h *OrderHandler) MergeOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req orderIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	merged, err := h.orderService.MergeOrders(userID, req.OrderIDs)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"order": merged,
	})
}

// POST /orders/:id/cancel-merge
func (h *OrderHandler) CancelMerge(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.CancelMerge(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"order": order,
	})
}

// POST /orders/delete-ready
func (h *OrderHandler) DeleteReadyOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req orderIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	result, err := h.orderService.DeleteReadyOrders(userID, req.OrderIDs)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"result": result,
	})
}
