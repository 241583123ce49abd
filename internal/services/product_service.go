// internal/services/product_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/models"
	"github.com/hanbitmall/mall-backend/internal/optionkey"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

// ProductService is the catalog surface: it supplies product existence and
// the current price at cart-add time. Prices are snapshotted by the cart and
// never re-read afterwards.
type ProductService struct {
	db           *gorm.DB
	stockService *StockService
}

type CreateProductRequest struct {
	Title       string                `json:"title" validate:"required,min=2,max=255"`
	Description string                `json:"description,omitempty"`
	Category    string                `json:"category,omitempty"`
	Price       string                `json:"price" validate:"required"`
	Currency    string                `json:"currency,omitempty"`
	Images      []string              `json:"images,omitempty"`
	Stocks      []ProductStockRequest `json:"stocks,omitempty"`
}

type ProductStockRequest struct {
	Options  map[string]interface{} `json:"options,omitempty"`
	Quantity int                    `json:"quantity" validate:"min=0"`
}

type UpdateProductRequest struct {
	Title       string               `json:"title,omitempty" validate:"omitempty,min=2,max=255"`
	Description string               `json:"description,omitempty"`
	Category    string               `json:"category,omitempty"`
	Price       string               `json:"price,omitempty"`
	Images      []string             `json:"images,omitempty"`
	Status      models.ProductStatus `json:"status,omitempty"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	Status   *models.ProductStatus `json:"status,omitempty"`
	PriceMin *string               `json:"price_min,omitempty"`
	PriceMax *string               `json:"price_max,omitempty"`
}

func NewProductService(db *gorm.DB, stockService *StockService) *ProductService {
	return &ProductService{
		db:           db,
		stockService: stockService,
	}
}

func (s *ProductService) CreateProduct(req *CreateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid price: %w", err)
	}
	if price.IsNegative() {
		return nil, errors.New("price cannot be negative")
	}

	currency := req.Currency
	if currency == "" {
		currency = "KRW"
	}

	product := &models.Product{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       price,
		Currency:    currency,
		Images:      pq.StringArray(req.Images),
		Status:      models.ProductStatusActive,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(product).Error; err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		for _, st := range req.Stocks {
			stock := models.ProductStock{
				ProductID:     product.ID,
				OptionKey:     optionkey.FromMap(st.Options),
				StockQuantity: st.Quantity,
			}
			if err := tx.Create(&stock).Error; err != nil {
				return fmt.Errorf("failed to create product stock: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.db.Preload("Stocks").First(product, product.ID)
	return product, nil
}

func (s *ProductService) GetProduct(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Stocks").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("product not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

func (s *ProductService) UpdateProduct(id uuid.UUID, req *UpdateProductRequest) (*models.Product, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var product models.Product
	if err := s.db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("product not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		updates["category"] = req.Category
	}
	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price: %w", err)
		}
		if price.IsNegative() {
			return nil, errors.New("price cannot be negative")
		}
		updates["price"] = price
	}
	if len(req.Images) > 0 {
		updates["images"] = pq.StringArray(req.Images)
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}

	if len(updates) > 0 {
		if err := s.db.Model(&product).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	s.db.Preload("Stocks").First(&product, product.ID)
	return &product, nil
}

func (s *ProductService) SearchProducts(params *ProductSearchParams) (*utils.PaginationResult, error) {
	query := s.db.Model(&models.Product{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	} else {
		query = query.Where("status = ?", models.ProductStatusActive)
	}
	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}
	if params.Search != "" {
		search := "%" + params.Search + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", search, search)
	}
	if params.PriceMin != nil {
		min, err := decimal.NewFromString(*params.PriceMin)
		if err != nil {
			return nil, fmt.Errorf("invalid price_min: %w", err)
		}
		query = query.Where("price >= ?", min)
	}
	if params.PriceMax != nil {
		max, err := decimal.NewFromString(*params.PriceMax)
		if err != nil {
			return nil, fmt.Errorf("invalid price_max: %w", err)
		}
		query = query.Where("price <= ?", max)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	query = utils.ApplySort(query, params.PaginationParams, []string{"created_at", "price", "title"})
	query = utils.ApplyPagination(query, params.PaginationParams)
	if err := query.Preload("Stocks").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	result := utils.CreatePaginationResult(products, total, params.PaginationParams)
	return &result, nil
}

// CheckAvailability reports whether the requested quantity of a product
// variant could be reserved right now.
func (s *ProductService) CheckAvailability(productID uuid.UUID, options map[string]interface{}, quantity int) error {
	if _, err := s.GetProduct(productID); err != nil {
		return err
	}
	return s.stockService.CheckAvailability(productID, optionkey.FromMap(options), quantity)
}

// Restock adds quantity to a variant through the ledger's release path, so
// restocking and cancellation compensation share one code path.
func (s *ProductService) Restock(productID uuid.UUID, options map[string]interface{}, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, errors.New("restock quantity must be positive")
	}
	if _, err := s.GetProduct(productID); err != nil {
		return 0, err
	}

	key := optionkey.FromMap(options)
	if err := s.stockService.Release(productID, key, quantity); err != nil {
		return 0, err
	}
	return s.stockService.Available(productID, key)
}
