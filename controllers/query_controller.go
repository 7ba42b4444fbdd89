package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

// CreateQueryRequest represents the request body for raising a query
type CreateQueryRequest struct {
	Message string `json:"message" binding:"required"`
}

// CreateQuery returns the handler for POST /orders/:id/queries of the
// given order type. Either party of a delivered order may raise a
// query; the sender role is recorded with it.
func CreateQuery(orderType string) gin.HandlerFunc {
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
		if err := db.Table(table).Where("id = ?", c.Param("id")).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		// Queries record a customer or retailer sender; the buyer and
		// the seller of the order are the only parties allowed.
		canQuery := (order.BuyerUID == user.UID || order.SellerUID == user.UID) &&
			(user.Role == models.RoleCustomer || user.Role == models.RoleRetailer)
		if !canQuery {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "You do not have permission to query this order",
				},
			})
			return
		}

		if order.Status != services.StatusDelivered {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "STATUS_CONFLICT",
					"message": "Queries can only be raised on delivered orders",
				},
			})
			return
		}

		var req CreateQueryRequest
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

		query := models.Query{
			OrderID:    order.ID,
			OrderType:  orderType,
			Message:    req.Message,
			SenderRole: user.Role,
		}
		if err := db.Create(&query).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to create query",
				},
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data":    query,
		})
	}
}

// ListQueries returns the handler for GET /orders/:id/queries of the
// given order type, visible to the order's buyer and seller.
func ListQueries(orderType string) gin.HandlerFunc {
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
		if err := db.Table(table).Where("id = ?", c.Param("id")).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "Order not found",
				},
			})
			return
		}

		if order.BuyerUID != user.UID && order.SellerUID != user.UID {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "You do not have permission to view queries on this order",
				},
			})
			return
		}

		var queries []models.Query
		if err := db.Where("order_id = ? AND order_type = ?", order.ID, orderType).Order("created_at").Find(&queries).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to list queries",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    queries,
		})
	}
}

// ResolveQuery returns the handler for PUT /queries/:id/resolve.
// Only the seller of the underlying order may mark a query resolved;
// the resolved flag is the one mutable field.
func ResolveQuery(orderType string) gin.HandlerFunc {
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
		var query models.Query
		if err := db.Where("id = ? AND order_type = ?", c.Param("id"), orderType).First(&query).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "QUERY_NOT_FOUND",
					"message": "Query not found",
				},
			})
			return
		}

		var order models.Order
		if err := db.Table(table).Where("id = ?", query.OrderID).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "The query's order no longer exists",
				},
			})
			return
		}

		if order.SellerUID != user.UID {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Only the order's seller can resolve queries",
				},
			})
			return
		}

		if err := db.Model(&query).UpdateColumn("resolved", true).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to resolve query",
				},
			})
			return
		}

		query.Resolved = true
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    query,
		})
	}
}
