package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

// PlaceOrderRequest represents the request body for placing an order
type PlaceOrderRequest struct {
	SellerUID string `json:"seller_uid" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gte=1"`
}

// RateOrderRequest represents the request body for rating a delivered order
type RateOrderRequest struct {
	Rating   int     `json:"rating" binding:"required,gte=1,lte=5"`
	Feedback *string `json:"feedback" binding:"omitempty"`
}

// BrowseProducts returns the handler for GET /products over the
// selling echelon one tier up: customers browse retailer inventory,
// retailers browse wholesaler inventory.
func BrowseProducts(sellerEchelon string) gin.HandlerFunc {
	table := models.InventoryTable(sellerEchelon)

	return func(c *gin.Context) {
		db := config.GetDB()
		query := db.Table(table).Where("stock > 0")
		if category := c.Query("category"); category != "" {
			query = query.Where("category = ?", category)
		}
		if seller := c.Query("seller_uid"); seller != "" {
			query = query.Where("owner_uid = ?", seller)
		}

		var items []models.InventoryItem
		if err := query.Order("name").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to list products",
				},
			})
			return
		}

		attachImageURLs(items)

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    items,
		})
	}
}

// PlaceOrder returns the handler for POST /orders of the given type.
// Stock is decremented at placement with a conditional update so two
// concurrent orders cannot both take the last unit; it is never
// restored afterwards (there is no cancellation path).
func PlaceOrder(orderType string) gin.HandlerFunc {
	orderTable := models.OrderTable(orderType)
	invTable := models.InventoryTable(models.SellerRole(orderType))

	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "Invalid request data",
					"details": err.Error(),
				},
			})
			return
		}

		db := config.GetDB()

		var item models.InventoryItem
		if err := db.Table(invTable).Where("owner_uid = ? AND product_id = ?", req.SellerUID, req.ProductID).First(&item).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PRODUCT_NOT_FOUND",
					"message": "The seller does not list this product",
				},
			})
			return
		}

		// Conditional decrement: the stock check and the write are one
		// statement, so a concurrent order cannot interleave between them.
		result := db.Table(invTable).
			Where("owner_uid = ? AND product_id = ? AND stock >= ?", req.SellerUID, req.ProductID, req.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", req.Quantity))
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to reserve stock",
				},
			})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "OUT_OF_STOCK",
					"message": "Not enough stock to fulfil this order",
				},
			})
			return
		}

		order := models.Order{
			BuyerUID:    user.UID,
			SellerUID:   req.SellerUID,
			ProductID:   req.ProductID,
			ProductName: item.Name,
			Quantity:    req.Quantity,
			UnitPrice:   item.Price,
			Total:       item.Price * float64(req.Quantity),
			Status:      services.StatusPlaced,
			OrderDate:   time.Now(),
		}

		if err := db.Table(orderTable).Create(&order).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to create order",
				},
			})
			return
		}

		// Payment is a best-effort side-channel: a checkout failure is
		// logged but never unwinds the placed order.
		var checkoutURL string
		if checkout := services.GetCheckoutService(); checkout != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
			sess, err := checkout.CreateSession(ctx, services.CheckoutInput{
				OrderID:       order.ID,
				OrderType:     orderType,
				ProductName:   order.ProductName,
				Quantity:      order.Quantity,
				Total:         order.Total,
				CustomerEmail: user.Email,
			})
			cancel()
			if err != nil {
				config.Logger().Error("checkout session failed",
					zap.Uint("order_id", order.ID),
					zap.String("order_type", orderType),
					zap.Error(err))
			} else {
				checkoutURL = sess.URL
				sessionID := sess.ID
				order.CheckoutSessionID = &sessionID
				if err := db.Table(orderTable).Where("id = ?", order.ID).UpdateColumn("checkout_session_id", sessionID).Error; err != nil {
					config.Logger().Error("failed to record checkout session",
						zap.Uint("order_id", order.ID),
						zap.Error(err))
				}
			}
		}

		services.NotifyStatusAsync(services.StatusNotice{
			OrderID:     order.ID,
			OrderType:   orderType,
			ProductName: order.ProductName,
			Status:      order.Status,
			Quantity:    order.Quantity,
			Total:       order.Total,
			OrderDate:   order.OrderDate,
			Recipient:   user.Email,
		})

		response := gin.H{"order": order}
		if checkoutURL != "" {
			response["checkout_url"] = checkoutURL
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data":    response,
		})
	}
}

// ListMyOrders returns the handler for GET /orders of the given type
// from the buyer's side.
func ListMyOrders(orderType string) gin.HandlerFunc {
	table := models.OrderTable(orderType)

	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		var orders []models.Order
		db := config.GetDB()
		if err := db.Table(table).Where("buyer_uid = ?", user.UID).Order("order_date DESC").Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to list orders",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    orders,
		})
	}
}

// GetMyOrder returns the handler for GET /orders/:id of the given
// type from the buyer's side.
func GetMyOrder(orderType string) gin.HandlerFunc {
	table := models.OrderTable(orderType)

	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		var order models.Order
		db := config.GetDB()
		if err := db.Table(table).Where("id = ? AND buyer_uid = ?", c.Param("id"), user.UID).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    order,
		})
	}
}

// ConfirmDelivery returns the handler for POST /orders/:id/confirm-delivery.
// This is the buyer's post-delivery acknowledgment, separate from the
// OTP-driven status transition, and requires the order be Delivered.
func ConfirmDelivery(orderType string) gin.HandlerFunc {
	table := models.OrderTable(orderType)

	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		db := config.GetDB()
		var order models.Order
		if err := db.Table(table).Where("id = ? AND buyer_uid = ?", c.Param("id"), user.UID).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		result := db.Table(table).
			Where("id = ? AND status = ?", order.ID, services.StatusDelivered).
			UpdateColumn("delivery_confirmed", true)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to confirm delivery",
				},
			})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "STATUS_CONFLICT",
					"message": "Delivery can only be confirmed after the order is Delivered",
				},
			})
			return
		}

		order.DeliveryConfirmed = true
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    order,
		})
	}
}

// RateOrder returns the handler for POST /orders/:id/rating. Only the
// buyer of a delivered order may rate it.
func RateOrder(orderType string) gin.HandlerFunc {
	table := models.OrderTable(orderType)

	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			return
		}

		var req RateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "Invalid request data",
					"details": err.Error(),
				},
			})
			return
		}

		db := config.GetDB()
		var order models.Order
		if err := db.Table(table).Where("id = ? AND buyer_uid = ?", c.Param("id"), user.UID).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		if order.Status != services.StatusDelivered {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "STATUS_CONFLICT",
					"message": "Only delivered orders can be rated",
				},
			})
			return
		}

		updates := map[string]interface{}{"rating": req.Rating}
		if req.Feedback != nil {
			updates["feedback"] = *req.Feedback
		}
		if err := db.Table(table).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to save rating",
				},
			})
			return
		}

		if err := db.Table(table).Where("id = ?", order.ID).First(&order).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to fetch updated order",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    order,
		})
	}
}
