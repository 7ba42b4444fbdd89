package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

// UpdateOrderStatusRequest represents the request body for a
// seller-side status update.
type UpdateOrderStatusRequest struct {
	OrderID           uint    `json:"order_id" binding:"required"`
	Status            string  `json:"status" binding:"required"`
	DeliveryDriverUID *string `json:"delivery_driver_uid" binding:"omitempty"`
}

// ListIncomingOrders returns the handler for GET /orders from the
// seller's side: retailers see customer orders, wholesalers see
// retailer orders.
func ListIncomingOrders(orderType string) gin.HandlerFunc {
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
		query := db.Table(table).Where("seller_uid = ?", user.UID)
		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if err := query.Order("order_date DESC").Find(&orders).Error; err != nil {
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

// UpdateOrderStatus returns the handler for PUT /orders/status. Only
// the order's counterparty-seller may move the status, only forward,
// and never directly to Delivered; dispatching requires an assigned
// delivery driver. The write is conditional on the status the caller
// saw, so concurrent updates cannot interleave.
func UpdateOrderStatus(orderType string) gin.HandlerFunc {
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

		var req UpdateOrderStatusRequest
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
		if err := db.Table(table).Where("id = ?", req.OrderID).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		if order.SellerUID != user.UID {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Only the order's seller can update its status",
				},
			})
			return
		}

		if err := services.CanAdvance(order.Status, req.Status); err != nil {
			switch {
			case errors.Is(err, services.ErrUnknownStatus):
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INVALID_STATUS",
						"message": "Status must be one of Placed, Confirmed, Dispatched, Delivered",
					},
				})
			case errors.Is(err, services.ErrDeliveredDirect):
				c.JSON(http.StatusConflict, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DELIVERY_REQUIRES_OTP",
						"message": "Delivered is only reachable through driver OTP verification",
					},
				})
			default:
				c.JSON(http.StatusConflict, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "STATUS_CONFLICT",
						"message": "Order status can only move forward",
					},
				})
			}
			return
		}

		updates := map[string]interface{}{"status": req.Status}
		if req.Status == services.StatusDispatched {
			if req.DeliveryDriverUID == nil || *req.DeliveryDriverUID == "" {
				c.JSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DRIVER_REQUIRED",
						"message": "Dispatching requires a delivery_driver_uid",
					},
				})
				return
			}

			var driver models.User
			if err := db.Where("uid = ? AND role = ?", *req.DeliveryDriverUID, models.RoleDelivery).First(&driver).Error; err != nil {
				c.JSON(http.StatusNotFound, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DRIVER_NOT_FOUND",
						"message": "No delivery driver with that uid",
					},
				})
				return
			}
			updates["delivery_driver_uid"] = *req.DeliveryDriverUID
		}

		// Keyed on the status the caller read: a concurrent update in
		// between makes this a no-op instead of a lost update.
		result := db.Table(table).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update order status",
				},
			})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "STATUS_CONFLICT",
					"message": "Order status changed concurrently, reload and retry",
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

		// Best-effort notice to the buyer; a failure here never rolls
		// back the status change.
		var buyer models.User
		if err := db.Where("uid = ?", order.BuyerUID).First(&buyer).Error; err == nil {
			services.NotifyStatusAsync(services.StatusNotice{
				OrderID:       order.ID,
				OrderType:     orderType,
				ProductName:   order.ProductName,
				Status:        order.Status,
				Quantity:      order.Quantity,
				Total:         order.Total,
				OrderDate:     order.OrderDate,
				DeliveredDate: order.DeliveredDate,
				Recipient:     buyer.Email,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    order,
		})
	}
}
