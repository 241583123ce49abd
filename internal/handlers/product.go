// internal/handlers/product.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/optionkey"
	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	stockService   *services.StockService
}

func NewProductHandler(productService *services.ProductService, stockService *services.StockService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		stockService:   stockService,
	}
}

// GET /products
func (h *ProductHandler) SearchProducts(c *gin.Context) {
	params := &services.ProductSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}

	if status := c.Query("status"); status != "" {
		s := models.ProductStatus(status)
		params.Status = &s
	}
	if min := c.Query("price_min"); min != "" {
		params.PriceMin = &min
	}
	if max := c.Query("price_max"); max != "" {
		params.PriceMax = &max
	}

	result, err := h.productService.SearchProducts(params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	product, err := h.productService.GetProduct(productID)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"product": product,
	})
}

// GET /products/:id/availability
//
// Option values come in as query parameters; "quantity" is reserved for the
// requested amount.
func (h *ProductHandler) CheckAvailability(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	quantity := parseQuantity(c, 1)
	options := make(map[string]interface{})
	for key, values := range c.Request.URL.Query() {
		if key == "quantity" || len(values) == 0 {
			continue
		}
		options[key] = values[0]
	}

	if err := h.productService.CheckAvailability(productID, options, quantity); err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"available": true,
		"quantity":  quantity,
	})
}

// parseQuantity reads an optional positive quantity query parameter.
func parseQuantity(c *gin.Context, def int) int {
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", strconv.Itoa(def)))
	if err != nil || qty < 1 {
		return def
	}
	return qty
}

// POST /admin/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req services.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	product, err := h.productService.CreateProduct(&req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"product": product,
	})
}

// PUT /admin/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	product, err := h.productService.UpdateProduct(productID, &req)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"product": product,
	})
}

// POST /admin/products/:id/restock
func (h *ProductHandler) Restock(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.ProductStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	available, err := h.productService.Restock(productID, req.Options, req.Quantity)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"available": available,
	})
}

// PUT /admin/products/:id/stock
func (h *ProductHandler) SetStockQuantity(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req services.ProductStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	stock, err := h.stockService.SetQuantity(productID, optionkey.FromMap(req.Options), req.Quantity)
	if err != nil {
		domainErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stock": stock,
	})
}
