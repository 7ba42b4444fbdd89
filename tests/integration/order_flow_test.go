package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/controllers"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
	"github.com/echelonmarket/echelon-api/tests/testutil"
)

// OrderFlowIntegrationTestSuite drives the order lifecycle across the
// echelons: inventory listing, placement, seller status updates, the
// driver's OTP handoff, and the buyer's post-delivery actions.
type OrderFlowIntegrationTestSuite struct {
	suite.Suite
	router   *gin.Engine
	db       *gorm.DB
	notifier *services.MockNotifier
	checkout *services.MockCheckout
}

func (suite *OrderFlowIntegrationTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	os.Setenv("GO_ENV", "test")
}

func (suite *OrderFlowIntegrationTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.NoError(err)
	suite.db = db

	suite.NoError(db.AutoMigrate(&models.User{}, &models.Address{}, &models.Query{}))
	for _, table := range []string{models.RetailerInventoryTable, models.WholesalerInventoryTable} {
		suite.NoError(db.Table(table).AutoMigrate(&models.InventoryItem{}))
	}
	for _, table := range []string{models.CustomerOrderTable, models.RetailerOrderTable} {
		suite.NoError(db.Table(table).AutoMigrate(&models.Order{}))
	}

	config.SetDB(db)
	config.SetConfig(&config.Config{GoEnv: "test", OTPTTLMinutes: 10})

	suite.notifier = services.NewMockNotifier()
	services.SetNotifier(suite.notifier)
	services.SetOTPService(services.NewOTPService(services.NewInMemoryOTPStore(), 10*time.Minute))
	suite.checkout = services.NewMockCheckout()
	services.SetCheckoutService(suite.checkout)

	suite.router = suite.buildRouter()
}

func (suite *OrderFlowIntegrationTestSuite) TearDownTest() {
	services.SetCheckoutService(nil)
	if sqlDB, err := suite.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// testAuthMiddleware reads the caller identity from a test header so
// one router can serve every role.
func testAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-UID"); uid != "" {
			testutil.SetMockAuthContext(c, uid, "https://test-issuer/", nil)
			c.Set("access_token", "test-token")
		}
		c.Next()
	}
}

// buildRouter mirrors the production route layout with the auth layer
// swapped for the test header.
func (suite *OrderFlowIntegrationTestSuite) buildRouter() *gin.Engine {
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.Use(testAuthMiddleware())

	customer := v1.Group("/customer", middleware.RequireRole(models.RoleCustomer))
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

	retailer := v1.Group("/retailer", middleware.RequireRole(models.RoleRetailer))
	{
		retailer.POST("/inventory", controllers.CreateInventoryItem(models.EchelonRetailer))
		retailer.GET("/orders", controllers.ListIncomingOrders(models.OrderTypeCustomer))
		retailer.PUT("/orders/status", controllers.UpdateOrderStatus(models.OrderTypeCustomer))
		retailer.PUT("/queries/:id/resolve", controllers.ResolveQuery(models.OrderTypeCustomer))

		retailer.GET("/products", controllers.BrowseProducts(models.EchelonWholesaler))
		retailer.POST("/purchases", controllers.PlaceOrder(models.OrderTypeRetailer))
		retailer.POST("/purchases/:id/confirm-delivery", controllers.ConfirmDelivery(models.OrderTypeRetailer))
	}

	wholesaler := v1.Group("/wholesaler", middleware.RequireRole(models.RoleWholesaler))
	{
		wholesaler.POST("/inventory", controllers.CreateInventoryItem(models.EchelonWholesaler))
		wholesaler.GET("/orders", controllers.ListIncomingOrders(models.OrderTypeRetailer))
		wholesaler.PUT("/orders/status", controllers.UpdateOrderStatus(models.OrderTypeRetailer))
	}

	delivery := v1.Group("/delivery", middleware.RequireRole(models.RoleDelivery))
	{
		delivery.GET("/orders", controllers.ListAssignedOrders)
		delivery.POST("/orders/:id/request-otp", controllers.RequestOTP)
		delivery.POST("/orders/:id/verify-otp", controllers.VerifyOTP)
	}

	return router
}

func (suite *OrderFlowIntegrationTestSuite) seedUser(uid, role, email string) models.User {
	user := models.User{UID: uid, Username: uid, Email: email, Role: role}
	suite.NoError(suite.db.Create(&user).Error)
	return user
}

func (suite *OrderFlowIntegrationTestSuite) do(uid, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-UID", uid)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *OrderFlowIntegrationTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var resp map[string]interface{}
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (suite *OrderFlowIntegrationTestSuite) TestCustomerOrderLifecycle() {
	suite.seedUser("local|cust-1", models.RoleCustomer, "cust1@example.com")
	suite.seedUser("local|ret-1", models.RoleRetailer, "ret1@example.com")
	suite.seedUser("local|drv-1", models.RoleDelivery, "drv1@example.com")

	// Retailer lists a product
	w := suite.do("local|ret-1", http.MethodPost, "/api/v1/retailer/inventory", gin.H{
		"product_id": "rice-5kg",
		"name":       "Basmati Rice 5kg",
		"price":      12.5,
		"stock":      8,
		"category":   "grains",
	})
	suite.Equal(http.StatusCreated, w.Code)

	// Customer browses and sees it
	w = suite.do("local|cust-1", http.MethodGet, "/api/v1/customer/products", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(suite.decode(w)["data"].([]interface{}), 1)

	// Customer places an order; a checkout session is opened for it
	w = suite.do("local|cust-1", http.MethodPost, "/api/v1/customer/orders", gin.H{
		"seller_uid": "local|ret-1",
		"product_id": "rice-5kg",
		"quantity":   3,
	})
	suite.Equal(http.StatusCreated, w.Code)
	data := suite.decode(w)["data"].(map[string]interface{})
	suite.NotEmpty(data["checkout_url"])
	order := data["order"].(map[string]interface{})
	orderID := uint(order["id"].(float64))
	suite.Equal(services.StatusPlaced, order["status"])
	suite.Equal(1, suite.checkout.SessionCount())

	var item models.InventoryItem
	suite.NoError(suite.db.Table(models.RetailerInventoryTable).Where("product_id = ?", "rice-5kg").First(&item).Error)
	suite.Equal(5, item.Stock)

	var stored models.Order
	suite.NoError(suite.db.Table(models.CustomerOrderTable).Where("id = ?", orderID).First(&stored).Error)
	suite.NotNil(stored.CheckoutSessionID)

	// Retailer sees the incoming order and confirms it
	w = suite.do("local|ret-1", http.MethodGet, "/api/v1/retailer/orders?status=Placed", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(suite.decode(w)["data"].([]interface{}), 1)

	w = suite.do("local|ret-1", http.MethodPut, "/api/v1/retailer/orders/status", gin.H{
		"order_id": orderID,
		"status":   services.StatusConfirmed,
	})
	suite.Equal(http.StatusOK, w.Code)

	// Dispatch with an assigned driver
	w = suite.do("local|ret-1", http.MethodPut, "/api/v1/retailer/orders/status", gin.H{
		"order_id":            orderID,
		"status":              services.StatusDispatched,
		"delivery_driver_uid": "local|drv-1",
	})
	suite.Equal(http.StatusOK, w.Code)

	// The driver sees the assignment
	w = suite.do("local|drv-1", http.MethodGet, "/api/v1/delivery/orders", nil)
	suite.Equal(http.StatusOK, w.Code)
	assigned := suite.decode(w)["data"].(map[string]interface{})
	suite.Len(assigned["customer_orders"].([]interface{}), 1)

	// Seller cannot jump straight to Delivered
	w = suite.do("local|ret-1", http.MethodPut, "/api/v1/retailer/orders/status", gin.H{
		"order_id": orderID,
		"status":   services.StatusDelivered,
	})
	suite.Equal(http.StatusConflict, w.Code)

	// Driver requests a code; it goes to the buyer's email
	w = suite.do("local|drv-1", http.MethodPost, fmt.Sprintf("/api/v1/delivery/orders/%d/request-otp", orderID), gin.H{
		"order_type": models.OrderTypeCustomer,
	})
	suite.Equal(http.StatusOK, w.Code)
	code, ok := suite.notifier.LastCode()
	suite.True(ok)
	suite.Equal("cust1@example.com", code.Recipient)

	// Wrong code does not deliver
	wrong := "000000"
	if wrong == code.Code {
		wrong = "000001"
	}
	w = suite.do("local|drv-1", http.MethodPost, fmt.Sprintf("/api/v1/delivery/orders/%d/verify-otp", orderID), gin.H{
		"otp":        wrong,
		"order_type": models.OrderTypeCustomer,
	})
	suite.Equal(http.StatusConflict, w.Code)

	// The right code completes the handoff
	w = suite.do("local|drv-1", http.MethodPost, fmt.Sprintf("/api/v1/delivery/orders/%d/verify-otp", orderID), gin.H{
		"otp":        code.Code,
		"order_type": models.OrderTypeCustomer,
	})
	suite.Equal(http.StatusOK, w.Code)

	suite.NoError(suite.db.Table(models.CustomerOrderTable).Where("id = ?", orderID).First(&stored).Error)
	suite.Equal(services.StatusDelivered, stored.Status)
	suite.NotNil(stored.DeliveredDate)

	// Buyer acknowledges, rates, and raises a query
	w = suite.do("local|cust-1", http.MethodPost, fmt.Sprintf("/api/v1/customer/orders/%d/confirm-delivery", orderID), nil)
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do("local|cust-1", http.MethodPost, fmt.Sprintf("/api/v1/customer/orders/%d/rating", orderID), gin.H{
		"rating":   5,
		"feedback": "fresh stock",
	})
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do("local|cust-1", http.MethodPost, fmt.Sprintf("/api/v1/customer/orders/%d/queries", orderID), gin.H{
		"message": "Need an invoice copy",
	})
	suite.Equal(http.StatusCreated, w.Code)
	queryID := uint(suite.decode(w)["data"].(map[string]interface{})["id"].(float64))

	// Retailer resolves it
	w = suite.do("local|ret-1", http.MethodPut, fmt.Sprintf("/api/v1/retailer/queries/%d/resolve", queryID), nil)
	suite.Equal(http.StatusOK, w.Code)

	var query models.Query
	suite.NoError(suite.db.First(&query, queryID).Error)
	suite.True(query.Resolved)
}

func (suite *OrderFlowIntegrationTestSuite) TestProcurementLifecycle() {
	suite.seedUser("local|ret-1", models.RoleRetailer, "ret1@example.com")
	suite.seedUser("local|whl-1", models.RoleWholesaler, "whl1@example.com")
	suite.seedUser("local|drv-1", models.RoleDelivery, "drv1@example.com")

	w := suite.do("local|whl-1", http.MethodPost, "/api/v1/wholesaler/inventory", gin.H{
		"product_id": "rice-25kg",
		"name":       "Basmati Rice 25kg",
		"price":      50.0,
		"stock":      20,
	})
	suite.Equal(http.StatusCreated, w.Code)

	// Retailer procures from the wholesaler tier
	w = suite.do("local|ret-1", http.MethodGet, "/api/v1/retailer/products", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Len(suite.decode(w)["data"].([]interface{}), 1)

	w = suite.do("local|ret-1", http.MethodPost, "/api/v1/retailer/purchases", gin.H{
		"seller_uid": "local|whl-1",
		"product_id": "rice-25kg",
		"quantity":   4,
	})
	suite.Equal(http.StatusCreated, w.Code)
	orderID := uint(suite.decode(w)["data"].(map[string]interface{})["order"].(map[string]interface{})["id"].(float64))

	// Wholesaler walks the order to dispatch
	w = suite.do("local|whl-1", http.MethodPut, "/api/v1/wholesaler/orders/status", gin.H{
		"order_id": orderID,
		"status":   services.StatusConfirmed,
	})
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do("local|whl-1", http.MethodPut, "/api/v1/wholesaler/orders/status", gin.H{
		"order_id":            orderID,
		"status":              services.StatusDispatched,
		"delivery_driver_uid": "local|drv-1",
	})
	suite.Equal(http.StatusOK, w.Code)

	// Driver hands off against the retailer order ledger
	w = suite.do("local|drv-1", http.MethodPost, fmt.Sprintf("/api/v1/delivery/orders/%d/request-otp", orderID), gin.H{
		"order_type": models.OrderTypeRetailer,
	})
	suite.Equal(http.StatusOK, w.Code)
	code, ok := suite.notifier.LastCode()
	suite.True(ok)
	suite.Equal("ret1@example.com", code.Recipient)

	w = suite.do("local|drv-1", http.MethodPost, fmt.Sprintf("/api/v1/delivery/orders/%d/verify-otp", orderID), gin.H{
		"otp":        code.Code,
		"order_type": models.OrderTypeRetailer,
	})
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do("local|ret-1", http.MethodPost, fmt.Sprintf("/api/v1/retailer/purchases/%d/confirm-delivery", orderID), nil)
	suite.Equal(http.StatusOK, w.Code)

	// The customer ledger never saw this order
	var count int64
	suite.NoError(suite.db.Table(models.CustomerOrderTable).Count(&count).Error)
	suite.Equal(int64(0), count)
}

func (suite *OrderFlowIntegrationTestSuite) TestRoleIsolation() {
	suite.seedUser("local|cust-1", models.RoleCustomer, "cust1@example.com")

	w := suite.do("local|cust-1", http.MethodPost, "/api/v1/retailer/inventory", gin.H{
		"product_id": "x",
		"name":       "X",
		"price":      1.0,
		"stock":      1,
	})
	suite.Equal(http.StatusForbidden, w.Code)

	w = suite.do("local|cust-1", http.MethodGet, "/api/v1/delivery/orders", nil)
	suite.Equal(http.StatusForbidden, w.Code)
}

func TestOrderFlowIntegrationSuite(t *testing.T) {
	suite.Run(t, new(OrderFlowIntegrationTestSuite))
}
