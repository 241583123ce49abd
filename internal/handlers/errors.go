// internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

// domainErrorResponse maps service-layer errors onto HTTP responses so the
// individual handlers stay thin.
func domainErrorResponse(c *gin.Context, err error) {
	var oos *services.OutOfStockError
	if errors.As(err, &oos) {
		utils.UnprocessableResponse(c, "OUT_OF_STOCK", oos.Error(), gin.H{
			"product_id": oos.ProductID,
			"option_key": oos.OptionKey,
			"requested":  oos.Requested,
			"available":  oos.Available,
		})
		return
	}

	var missing *services.StockRowMissingError
	if errors.As(err, &missing) {
		utils.UnprocessableResponse(c, "STOCK_NOT_REGISTERED", missing.Error(), gin.H{
			"product_id": missing.ProductID,
			"option_key": missing.OptionKey,
		})
		return
	}

	var empty *services.EmptyCartError
	if errors.As(err, &empty) {
		utils.UnprocessableResponse(c, "EMPTY_CART", empty.Error(), nil)
		return
	}

	var transition *services.InvalidStateTransitionError
	if errors.As(err, &transition) {
		utils.ConflictResponse(c, transition.Error())
		return
	}

	var resolution *services.OrderResolutionError
	if errors.As(err, &resolution) {
		utils.ErrorResponse(c, http.StatusConflict, "ORDER_RESOLUTION_FAILED", resolution.Error(), gin.H{
			"requested": resolution.Requested,
			"found":     resolution.Found,
			"missing":   resolution.Missing(),
		})
		return
	}

	if strings.Contains(err.Error(), "not found") {
		utils.NotFoundResponse(c, err.Error())
		return
	}

	utils.BadRequestResponse(c, err.Error(), nil)
}

// currentUserID pulls the authenticated user's ID out of the request context.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a UUID path parameter, responding with 400 on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}
