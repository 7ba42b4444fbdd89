package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

func setupDeliveryRouter(driverUID string) *gin.Engine {
	router := setupTestRouter()
	delivery := router.Group("/delivery", mockAuthMiddleware(driverUID), middleware.RequireRole(models.RoleDelivery))
	delivery.GET("/orders", ListAssignedOrders)
	delivery.POST("/orders/:id/request-otp", RequestOTP)
	delivery.POST("/orders/:id/verify-otp", VerifyOTP)
	return router
}

func TestListAssignedOrders(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	useTestServices(t)

	driver := seedUser(t, db, "local|drv-1", models.RoleDelivery, "drv1@example.com")
	driverUID := driver.UID
	seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-1", SellerUID: "local|ret-1", ProductID: "prod-a",
		ProductName: "Item prod-a", Quantity: 1, UnitPrice: 25, Total: 25,
		Status: services.StatusDispatched, DeliveryDriverUID: &driverUID,
	})
	seedOrder(t, db, models.OrderTypeRetailer, models.Order{
		BuyerUID: "local|ret-1", SellerUID: "local|whl-1", ProductID: "prod-b",
		ProductName: "Item prod-b", Quantity: 2, UnitPrice: 10, Total: 20,
		Status: services.StatusDispatched, DeliveryDriverUID: &driverUID,
	})
	// Unassigned order stays out of the driver's list
	seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-2", SellerUID: "local|ret-1", ProductID: "prod-c",
		ProductName: "Item prod-c", Quantity: 1, UnitPrice: 5, Total: 5,
	})

	router := setupDeliveryRouter(driver.UID)
	w := performRequest(router, http.MethodGet, "/delivery/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Len(t, data["customer_orders"].([]interface{}), 1)
	assert.Len(t, data["retailer_orders"].([]interface{}), 1)
}

func TestRequestOTP(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	notifier, _ := useTestServices(t)

	driver := seedUser(t, db, "local|drv-1", models.RoleDelivery, "drv1@example.com")
	seedUser(t, db, "local|cust-1", models.RoleCustomer, "cust1@example.com")
	driverUID := driver.UID
	dispatched := seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-1", SellerUID: "local|ret-1", ProductID: "prod-a",
		ProductName: "Item prod-a", Quantity: 1, UnitPrice: 25, Total: 25,
		Status: services.StatusDispatched, DeliveryDriverUID: &driverUID,
	})
	placed := seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-1", SellerUID: "local|ret-1", ProductID: "prod-b",
		ProductName: "Item prod-b", Quantity: 1, UnitPrice: 25, Total: 25,
		DeliveryDriverUID: &driverUID,
	})

	router := setupDeliveryRouter(driver.UID)

	t.Run("Issues a code to the buyer", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, fmt.Sprintf("/delivery/orders/%d/request-otp", dispatched.ID), gin.H{
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		sent, ok := notifier.LastCode()
		assert.True(t, ok, "delivery code should be sent")
		assert.Equal(t, "cust1@example.com", sent.Recipient)
		assert.Len(t, sent.Code, 6)

		data := decodeResponse(t, w)["data"].(map[string]interface{})
		assert.NotEmpty(t, data["expires_at"])
		// A mail-backed notifier never echoes the code in the response
		_, echoed := data["otp"]
		assert.False(t, echoed)
	})

	t.Run("Echoes the code when the notifier is plaintext", func(t *testing.T) {
		notifier.PlaintextMode = true
		defer func() { notifier.PlaintextMode = false }()

		w := performRequest(router, http.MethodPost, fmt.Sprintf("/delivery/orders/%d/request-otp", dispatched.ID), gin.H{
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		data := decodeResponse(t, w)["data"].(map[string]interface{})
		assert.Len(t, data["otp"], 6)
	})

	t.Run("Rejects non-dispatched orders", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, fmt.Sprintf("/delivery/orders/%d/request-otp", placed.ID), gin.H{
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "STATUS_CONFLICT", errorCode(t, w))
	})

	t.Run("Rejects invalid order type", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, fmt.Sprintf("/delivery/orders/%d/request-otp", dispatched.ID), gin.H{
			"order_type": "wholesaler",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_ORDER_TYPE", errorCode(t, w))
	})

	t.Run("Rejects another driver's order", func(t *testing.T) {
		other := seedUser(t, db, "local|drv-2", models.RoleDelivery, "drv2@example.com")
		otherRouter := setupDeliveryRouter(other.UID)

		w := performRequest(otherRouter, http.MethodPost, fmt.Sprintf("/delivery/orders/%d/request-otp", dispatched.ID), gin.H{
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, w))
	})
}

func TestVerifyOTP(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	notifier, _ := useTestServices(t)

	driver := seedUser(t, db, "local|drv-1", models.RoleDelivery, "drv1@example.com")
	seedUser(t, db, "local|cust-1", models.RoleCustomer, "cust1@example.com")
	driverUID := driver.UID
	order := seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-1", SellerUID: "local|ret-1", ProductID: "prod-a",
		ProductName: "Item prod-a", Quantity: 1, UnitPrice: 25, Total: 25,
		Status: services.StatusDispatched, DeliveryDriverUID: &driverUID,
	})

	router := setupDeliveryRouter(driver.UID)
	verifyPath := fmt.Sprintf("/delivery/orders/%d/verify-otp", order.ID)
	requestPath := fmt.Sprintf("/delivery/orders/%d/request-otp", order.ID)

	t.Run("Verify without an outstanding code", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, verifyPath, gin.H{
			"otp":        "123456",
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "OTP_NOT_FOUND", errorCode(t, w))
	})

	t.Run("Wrong code leaves the order dispatched", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, requestPath, gin.H{"order_type": models.OrderTypeCustomer})
		assert.Equal(t, http.StatusOK, w.Code)
		sent, _ := notifier.LastCode()

		wrong := "000000"
		if wrong == sent.Code {
			wrong = "000001"
		}
		w = performRequest(router, http.MethodPost, verifyPath, gin.H{
			"otp":        wrong,
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "OTP_MISMATCH", errorCode(t, w))

		var got models.Order
		assert.NoError(t, db.Table(models.CustomerOrderTable).Where("id = ?", order.ID).First(&got).Error)
		assert.Equal(t, services.StatusDispatched, got.Status)
	})

	t.Run("Matching code delivers the order exactly once", func(t *testing.T) {
		sent, ok := notifier.LastCode()
		assert.True(t, ok)

		w := performRequest(router, http.MethodPost, verifyPath, gin.H{
			"otp":        sent.Code,
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		var got models.Order
		assert.NoError(t, db.Table(models.CustomerOrderTable).Where("id = ?", order.ID).First(&got).Error)
		assert.Equal(t, services.StatusDelivered, got.Status)
		assert.NotNil(t, got.DeliveredDate)
		assert.False(t, got.DeliveryConfirmed)

		// The code is one-shot
		w = performRequest(router, http.MethodPost, verifyPath, gin.H{
			"otp":        sent.Code,
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "OTP_NOT_FOUND", errorCode(t, w))
	})

	t.Run("Cannot issue a code once delivered", func(t *testing.T) {
		w := performRequest(router, http.MethodPost, requestPath, gin.H{"order_type": models.OrderTypeCustomer})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "STATUS_CONFLICT", errorCode(t, w))
	})
}

func TestVerifyOTP_ReissueInvalidatesOldCode(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	notifier, _ := useTestServices(t)

	driver := seedUser(t, db, "local|drv-1", models.RoleDelivery, "drv1@example.com")
	seedUser(t, db, "local|cust-1", models.RoleCustomer, "cust1@example.com")
	driverUID := driver.UID
	order := seedOrder(t, db, models.OrderTypeCustomer, models.Order{
		BuyerUID: "local|cust-1", SellerUID: "local|ret-1", ProductID: "prod-a",
		ProductName: "Item prod-a", Quantity: 1, UnitPrice: 25, Total: 25,
		Status: services.StatusDispatched, DeliveryDriverUID: &driverUID,
	})

	router := setupDeliveryRouter(driver.UID)
	requestPath := fmt.Sprintf("/delivery/orders/%d/request-otp", order.ID)
	verifyPath := fmt.Sprintf("/delivery/orders/%d/verify-otp", order.ID)

	w := performRequest(router, http.MethodPost, requestPath, gin.H{"order_type": models.OrderTypeCustomer})
	assert.Equal(t, http.StatusOK, w.Code)
	first, _ := notifier.LastCode()

	w = performRequest(router, http.MethodPost, requestPath, gin.H{"order_type": models.OrderTypeCustomer})
	assert.Equal(t, http.StatusOK, w.Code)
	second, _ := notifier.LastCode()

	if first.Code != second.Code {
		w = performRequest(router, http.MethodPost, verifyPath, gin.H{
			"otp":        first.Code,
			"order_type": models.OrderTypeCustomer,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "OTP_MISMATCH", errorCode(t, w))
	}

	w = performRequest(router, http.MethodPost, verifyPath, gin.H{
		"otp":        second.Code,
		"order_type": models.OrderTypeCustomer,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
