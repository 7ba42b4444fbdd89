package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

// RequestOTPRequest represents the request body for issuing a delivery code
type RequestOTPRequest struct {
	OrderType string `json:"order_type" binding:"required"`
}

// VerifyOTPRequest represents the request body for verifying a delivery code
type VerifyOTPRequest struct {
	OTP       string `json:"otp" binding:"required"`
	OrderType string `json:"order_type" binding:"required"`
}

// ListAssignedOrders handles GET /api/v1/delivery/orders - all orders
// of both types assigned to the calling driver.
func ListAssignedOrders(c *gin.Context) {
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
	var customerOrders, retailerOrders []models.Order
	if err := db.Table(models.CustomerOrderTable).Where("delivery_driver_uid = ?", user.UID).Order("order_date DESC").Find(&customerOrders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list assigned orders",
			},
		})
		return
	}
	if err := db.Table(models.RetailerOrderTable).Where("delivery_driver_uid = ?", user.UID).Order("order_date DESC").Find(&retailerOrders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list assigned orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"customer_orders": customerOrders,
			"retailer_orders": retailerOrders,
		},
	})
}

// RequestOTP handles POST /api/v1/delivery/orders/:id/request-otp.
// Only the assigned driver of a Dispatched order may issue a code; a
// fresh code overwrites any outstanding one for the same order.
func RequestOTP(c *gin.Context) {
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

	var req RequestOTPRequest
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
	if !models.ValidOrderType(req.OrderType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ORDER_TYPE",
				"message": "order_type must be customer or retailer",
			},
		})
		return
	}

	order, ok := loadAssignedOrder(c, user.UID, req.OrderType)
	if !ok {
		return
	}

	if order.Status != services.StatusDispatched {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STATUS_CONFLICT",
				"message": "Codes can only be issued for Dispatched orders",
			},
		})
		return
	}

	db := config.GetDB()
	var buyer models.User
	if err := db.Where("uid = ?", order.BuyerUID).First(&buyer).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "The order's buyer no longer exists",
			},
		})
		return
	}

	otp := services.GetOTPService()
	key := services.OTPKey{OrderID: order.ID, OrderType: req.OrderType}
	entry, err := otp.Issue(c.Request.Context(), key, buyer.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "OTP_ERROR",
				"message": "Failed to issue delivery code",
			},
		})
		return
	}

	notifier := services.GetNotifier()
	if err := notifier.SendDeliveryCode(c.Request.Context(), buyer.Email, entry.Code, order.ID); err != nil {
		// Best-effort: the code is issued either way
		config.Logger().Error("failed to send delivery code",
			zap.Uint("order_id", order.ID),
			zap.String("order_type", req.OrderType),
			zap.Error(err))
	}

	data := gin.H{
		"order_id":   order.ID,
		"order_type": req.OrderType,
		"expires_at": entry.ExpiresAt,
	}
	// Without a mail transport the driver reads the code from the
	// response and relays it to the buyer.
	if notifier.Plaintext() {
		data["otp"] = entry.Code
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// VerifyOTP handles POST /api/v1/delivery/orders/:id/verify-otp. A
// matching, unexpired code moves the order to Delivered with a
// delivered timestamp; the code is single-use.
func VerifyOTP(c *gin.Context) {
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

	var req VerifyOTPRequest
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
	if !models.ValidOrderType(req.OrderType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ORDER_TYPE",
				"message": "order_type must be customer or retailer",
			},
		})
		return
	}

	order, ok := loadAssignedOrder(c, user.UID, req.OrderType)
	if !ok {
		return
	}

	otp := services.GetOTPService()
	key := services.OTPKey{OrderID: order.ID, OrderType: req.OrderType}
	recipient, err := otp.Verify(c.Request.Context(), key, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOTPNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "OTP_NOT_FOUND",
					"message": "No code outstanding for this order, request one first",
				},
			})
		case errors.Is(err, services.ErrOTPExpired):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "OTP_EXPIRED",
					"message": "The code has expired, request a new one",
				},
			})
		case errors.Is(err, services.ErrOTPMismatch):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "OTP_MISMATCH",
					"message": "The code does not match",
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "OTP_ERROR",
					"message": "Failed to verify delivery code",
				},
			})
		}
		return
	}

	// Conditional on Dispatched: the terminal transition happens at
	// most once even if two verifications race.
	now := time.Now()
	table := models.OrderTable(req.OrderType)
	db := config.GetDB()
	result := db.Table(table).
		Where("id = ? AND status = ?", order.ID, services.StatusDispatched).
		Updates(map[string]interface{}{
			"status":             services.StatusDelivered,
			"delivered_date":     now,
			"delivery_confirmed": false,
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to mark order delivered",
			},
		})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STATUS_CONFLICT",
				"message": "Order is no longer Dispatched",
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

	services.NotifyStatusAsync(services.StatusNotice{
		OrderID:       order.ID,
		OrderType:     req.OrderType,
		ProductName:   order.ProductName,
		Status:        order.Status,
		Quantity:      order.Quantity,
		Total:         order.Total,
		OrderDate:     order.OrderDate,
		DeliveredDate: order.DeliveredDate,
		Recipient:     recipient,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// loadAssignedOrder fetches the order in the URL and checks it is
// assigned to the calling driver. On failure it writes the error
// response and returns ok=false.
func loadAssignedOrder(c *gin.Context, driverUID, orderType string) (models.Order, bool) {
	table := models.OrderTable(orderType)

	var order models.Order
	db := config.GetDB()
	if err := db.Table(table).Where("id = ?", c.Param("id")).First(&order).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return models.Order{}, false
	}

	if order.DeliveryDriverUID == nil || *order.DeliveryDriverUID != driverUID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "This order is not assigned to you",
			},
		})
		return models.Order{}, false
	}

	return order, true
}
