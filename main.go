package main

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/controllers"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

func main() {
	log.Println("Starting Echelon Market API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.InitLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(&models.User{}, &models.Address{}, &models.Query{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	// The per-echelon inventory and order tables share one row shape
	for _, table := range []string{models.RetailerInventoryTable, models.WholesalerInventoryTable} {
		if err := db.Table(table).AutoMigrate(&models.InventoryItem{}); err != nil {
			log.Fatalf("Failed to migrate %s: %v", table, err)
		}
	}
	for _, table := range []string{models.CustomerOrderTable, models.RetailerOrderTable} {
		if err := db.Table(table).AutoMigrate(&models.Order{}); err != nil {
			log.Fatalf("Failed to migrate %s: %v", table, err)
		}
	}
	log.Println("Database migration completed successfully")

	// Side services
	services.InitNotifier(cfg, logger)
	services.InitOTPService(cfg)
	services.InitCheckout(cfg, logger)
	if cfg.AWSS3Bucket != "" {
		if _, err := services.InitS3Service(); err != nil {
			logger.Warn("S3 unavailable, product images fall back to local storage", zap.Error(err))
		}
	}

	router := buildRouter(cfg)

	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildRouter wires the role-scoped route groups.
func buildRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		v1.POST("/auth/register", controllers.Register)
		v1.POST("/auth/login", controllers.Login)
	}

	authed := v1.Group("")
	authed.Use(middleware.EnsureValidToken(cfg))
	{
		authed.POST("/users", controllers.CreateUser)
		authed.GET("/users/me", controllers.GetMyProfile)
		authed.PUT("/users/me", controllers.UpdateMyProfile)
		authed.PUT("/users/me/address", controllers.UpsertMyAddress)
		authed.GET("/users/me/address", controllers.GetMyAddress)

		authed.POST("/uploads/product-image",
			middleware.RequireRole(models.RoleRetailer, models.RoleWholesaler),
			controllers.UploadProductImage)
	}

	customer := authed.Group("/customer", middleware.RequireRole(models.RoleCustomer))
	{
		customer.GET("/products", controllers.BrowseProducts(models.EchelonRetailer))
		customer.POST("/orders", controllers.PlaceOrder(models.OrderTypeCustomer))
		customer.GET("/orders", controllers.ListMyOrders(models.OrderTypeCustomer))
		customer.GET("/orders/:id", controllers.GetMyOrder(models.OrderTypeCustomer))
		customer.POST("/orders/:id/confirm-delivery", controllers.ConfirmDelivery(models.OrderTypeCustomer))
		customer.POST("/orders/:id/rating", controllers.RateOrder(models.OrderTypeCustomer))
		customer.POST("/orders/:id/queries", controllers.CreateQuery(models.OrderTypeCustomer))
		customer.GET("/orders/:id/queries", controllers.ListQueries(models.OrderTypeCustomer))
	}

	retailer := authed.Group("/retailer", middleware.RequireRole(models.RoleRetailer))
	{
		retailer.POST("/inventory", controllers.CreateInventoryItem(models.EchelonRetailer))
		retailer.GET("/inventory", controllers.ListMyInventory(models.EchelonRetailer))
		retailer.PUT("/inventory/:productID", controllers.UpdateInventoryItem(models.EchelonRetailer))
		retailer.DELETE("/inventory/:productID", controllers.DeleteInventoryItem(models.EchelonRetailer))

		// Incoming customer orders
		retailer.GET("/orders", controllers.ListIncomingOrders(models.OrderTypeCustomer))
		retailer.PUT("/orders/status", controllers.UpdateOrderStatus(models.OrderTypeCustomer))
		retailer.PUT("/queries/:id/resolve", controllers.ResolveQuery(models.OrderTypeCustomer))

		// Procurement from wholesalers
		retailer.GET("/products", controllers.BrowseProducts(models.EchelonWholesaler))
		retailer.POST("/purchases", controllers.PlaceOrder(models.OrderTypeRetailer))
		retailer.GET("/purchases", controllers.ListMyOrders(models.OrderTypeRetailer))
		retailer.GET("/purchases/:id", controllers.GetMyOrder(models.OrderTypeRetailer))
		retailer.POST("/purchases/:id/confirm-delivery", controllers.ConfirmDelivery(models.OrderTypeRetailer))
		retailer.POST("/purchases/:id/rating", controllers.RateOrder(models.OrderTypeRetailer))
		retailer.POST("/purchases/:id/queries", controllers.CreateQuery(models.OrderTypeRetailer))
		retailer.GET("/purchases/:id/queries", controllers.ListQueries(models.OrderTypeRetailer))
	}

	wholesaler := authed.Group("/wholesaler", middleware.RequireRole(models.RoleWholesaler))
	{
		wholesaler.POST("/inventory", controllers.CreateInventoryItem(models.EchelonWholesaler))
		wholesaler.GET("/inventory", controllers.ListMyInventory(models.EchelonWholesaler))
		wholesaler.PUT("/inventory/:productID", controllers.UpdateInventoryItem(models.EchelonWholesaler))
		wholesaler.DELETE("/inventory/:productID", controllers.DeleteInventoryItem(models.EchelonWholesaler))

		wholesaler.GET("/orders", controllers.ListIncomingOrders(models.OrderTypeRetailer))
		wholesaler.PUT("/orders/status", controllers.UpdateOrderStatus(models.OrderTypeRetailer))
		wholesaler.PUT("/queries/:id/resolve", controllers.ResolveQuery(models.OrderTypeRetailer))
	}

	delivery := authed.Group("/delivery", middleware.RequireRole(models.RoleDelivery))
	{
		delivery.GET("/orders", controllers.ListAssignedOrders)
		delivery.POST("/orders/:id/request-otp", controllers.RequestOTP)
		delivery.POST("/orders/:id/verify-otp", controllers.VerifyOTP)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Echelon Market API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
