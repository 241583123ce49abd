// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /orders/:id/payments
func (h *PaymentHandler) CreateStub(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	orderID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payment, created, err := h.paymentService.CreateStub(userID, orderID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	if created {
		utils.CreatedResponse(c, gin.H{"payment": payment})
		return
	}
	utils.SuccessResponse(c, gin.H{"payment": payment})
}

// GET /payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(userID, paymentID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": payment,
	})
}

// POST /payments/:id/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		ProviderKey string                 `json:"provider_key" validate:"required"`
		Payload     map[string]interface{} `json:"payload,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	payment, changed, err := h.paymentService.Confirm(userID, paymentID, req.ProviderKey, req.Payload)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": payment,
		"changed": changed,
	})
}

// POST /payments/:id/cancel
func (h *PaymentHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason,omitempty" validate:"max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	payment, changed, err := h.paymentService.Cancel(userID, paymentID, req.Reason)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": payment,
		"changed": changed,
	})
}

// GET /payments/:id/provider
func (h *PaymentHandler) Retrieve(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.paymentService.Retrieve(userID, paymentID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"provider": result,
	})
}

// POST /payments/:id/sync
func (h *PaymentHandler) Sync(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payment, changed, err := h.paymentService.Sync(userID, paymentID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"payment": payment,
		"changed": changed,
	})
}
