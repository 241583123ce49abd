// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/handlers"
	"github.com/hanbitmall/mall-backend/internal/middleware"
	"github.com/hanbitmall/mall-backend/internal/provider"
	"github.com/hanbitmall/mall-backend/internal/services"
	"github.com/hanbitmall/mall-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	var gateway provider.Gateway
	if cfg.Payment.MockMode {
		gateway = provider.NewMockGateway()
	} else {
		gateway = provider.NewStripeGateway(cfg)
	}

	notificationService := services.NewNotificationService(db, cfg)
	authService := services.NewAuthService(db, cfg)
	stockService := services.NewStockService(db)
	cartService := services.NewCartService(db, cfg)
	productService := services.NewProductService(db, stockService)
	orderService := services.NewOrderService(db, cfg, stockService, cartService).WithNotifier(notificationService)
	paymentService := services.NewPaymentService(db, cfg, orderService, gateway).WithNotifier(notificationService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	productHandler := handlers.NewProductHandler(productService, stockService)
	cartHandler := handlers.NewCartHandler(cartService, orderService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	// Per-IP throttling; the test suite sends everything from one IP.
	if cfg.Environment != "test" {
		r.Use(middleware.GeneralRateLimit())
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Catalog routes (public)
		products := v1.Group("/products")
		{
			products.GET("", middleware.OptionalAuth(), productHandler.SearchProducts)
			products.GET("/:id", middleware.OptionalAuth(), productHandler.GetProduct)
			products.GET("/:id/availability", productHandler.CheckAvailability)
		}

		// Cart routes
		cart := v1.Group("/cart")
		cart.Use(middleware.AuthRequired())
		{
			cart.GET("", cartHandler.GetCart)
			cart.DELETE("", cartHandler.ClearCart)
			cart.POST("/items", cartHandler.AddItem)
			cart.PUT("/items/:id", cartHandler.UpdateItemQuantity)
			cart.DELETE("/items/:id", cartHandler.RemoveItem)
			cart.GET("/stock-check", cartHandler.ValidateStock)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("/checkout", middleware.CheckoutRateLimit(), orderHandler.Checkout)
			orders.GET("", orderHandler.ListOrders)
			orders.GET("/ready/summary", orderHandler.ReadySummary)
			orders.POST("/merge", orderHandler.MergeOrders)
			orders.POST("/delete-ready", orderHandler.DeleteReadyOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.GET("/:id/lines", orderHandler.LegacyLines)
			orders.POST("/:id/items", orderHandler.MaterializeItems)
			orders.POST("/:id/cancel", orderHandler.CancelOrder)
			orders.POST("/:id/refund", orderHandler.RefundOrder)
			orders.POST("/:id/cancel-merge", orderHandler.CancelMerge)
			orders.POST("/:id/payments", paymentHandler.CreateStub)
		}

		// Payment routes
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthRequired())
		{
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.POST("/:id/confirm", paymentHandler.Confirm)
			payments.POST("/:id/cancel", paymentHandler.Cancel)
			payments.GET("/:id/provider", paymentHandler.Retrieve)
			payments.POST("/:id/sync", paymentHandler.Sync)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/products", productHandler.CreateProduct)
			admin.PUT("/products/:id", productHandler.UpdateProduct)
			admin.POST("/products/:id/restock", productHandler.Restock)
			admin.PUT("/products/:id/stock", productHandler.SetStockQuantity)
		}
	}

	return r
}
