package controllers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Address{}, &models.Query{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	for _, table := range []string{models.RetailerInventoryTable, models.WholesalerInventoryTable} {
		if err := db.Table(table).AutoMigrate(&models.InventoryItem{}); err != nil {
			t.Fatalf("Failed to migrate %s: %v", table, err)
		}
	}
	for _, table := range []string{models.CustomerOrderTable, models.RetailerOrderTable} {
		if err := db.Table(table).AutoMigrate(&models.Order{}); err != nil {
			t.Fatalf("Failed to migrate %s: %v", table, err)
		}
	}

	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// mockAuthMiddleware simulates the token middleware: it sets the
// context keys exactly as the real EnsureValidToken does for a local
// token. Role checks still go through middleware.RequireRole against
// the seeded user rows.
func mockAuthMiddleware(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", uid)
		c.Set("access_token", "test-token")
		c.Next()
	}
}

func seedUser(t *testing.T, db *gorm.DB, uid, role, email string) models.User {
	user := models.User{
		UID:      uid,
		Username: uid,
		Email:    email,
		Role:     role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to seed user %s: %v", uid, err)
	}
	return user
}

func seedInventoryItem(t *testing.T, db *gorm.DB, echelon, ownerUID, productID string, price float64, stock int) models.InventoryItem {
	item := models.InventoryItem{
		OwnerUID:  ownerUID,
		ProductID: productID,
		Name:      "Item " + productID,
		Price:     price,
		Stock:     stock,
	}
	if err := db.Table(models.InventoryTable(echelon)).Create(&item).Error; err != nil {
		t.Fatalf("Failed to seed inventory item %s: %v", productID, err)
	}
	return item
}

func seedOrder(t *testing.T, db *gorm.DB, orderType string, order models.Order) models.Order {
	if order.Status == "" {
		order.Status = services.StatusPlaced
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now()
	}
	if err := db.Table(models.OrderTable(orderType)).Create(&order).Error; err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	return order
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			panic(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	resp := decodeResponse(t, w)
	errObj, ok := resp["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("Response has no error object: %q", w.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// useTestServices swaps in in-memory doubles for the side services and
// restores the previous ones when the test ends.
func useTestServices(t *testing.T) (*services.MockNotifier, *services.OTPService) {
	notifier := services.NewMockNotifier()
	prevNotifier := services.GetNotifier()
	services.SetNotifier(notifier)

	otp := services.NewOTPService(services.NewInMemoryOTPStore(), 10*time.Minute)
	prevOTP := services.GetOTPService()
	services.SetOTPService(otp)

	prevCheckout := services.GetCheckoutService()
	services.SetCheckoutService(nil)

	t.Cleanup(func() {
		services.SetNotifier(prevNotifier)
		services.SetOTPService(prevOTP)
		services.SetCheckoutService(prevCheckout)
	})
	return notifier, otp
}
