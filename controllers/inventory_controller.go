package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/middleware"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/echelonmarket/echelon-api/services"
)

// CreateInventoryRequest represents the request body for adding an inventory item
type CreateInventoryRequest struct {
	ProductID string   `json:"product_id" binding:"omitempty"`
	Name      string   `json:"name" binding:"required"`
	Price     *float64 `json:"price" binding:"required,gte=0"`
	Stock     *int     `json:"stock" binding:"required,gte=0"`
	Category  string   `json:"category" binding:"omitempty"`
	Image     string   `json:"image" binding:"omitempty"`
}

// UpdateInventoryRequest represents the request body for updating an inventory item
type UpdateInventoryRequest struct {
	Name     string   `json:"name" binding:"omitempty"`
	Price    *float64 `json:"price" binding:"omitempty,gte=0"`
	Stock    *int     `json:"stock" binding:"omitempty,gte=0"`
	Category string   `json:"category" binding:"omitempty"`
	Image    string   `json:"image" binding:"omitempty"`
}

// CreateInventoryItem returns the handler for POST /inventory for the
// given echelon. Items are scoped to the owning seller; (owner,
// product) is unique per table.
func CreateInventoryItem(echelon string) gin.HandlerFunc {
	table := models.InventoryTable(echelon)

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

		var req CreateInventoryRequest
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

		productID := req.ProductID
		if productID == "" {
			productID = uuid.NewString()
		}

		item := models.InventoryItem{
			OwnerUID:  user.UID,
			ProductID: productID,
			Name:      req.Name,
			Price:     *req.Price,
			Stock:     *req.Stock,
			Category:  req.Category,
			Image:     req.Image,
		}

		db := config.GetDB()
		if err := db.Table(table).Create(&item).Error; err != nil {
			errMsg := strings.ToLower(err.Error())
			if strings.Contains(errMsg, "duplicate") || strings.Contains(errMsg, "unique") {
				c.JSON(http.StatusConflict, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "PRODUCT_EXISTS",
						"message": "You already list this product",
					},
				})
				return
			}

			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to create inventory item",
				},
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data":    item,
		})
	}
}

// ListMyInventory returns the handler for GET /inventory for the
// given echelon: the caller's own listings, optionally filtered by
// category, with presigned image URLs when S3 is configured.
func ListMyInventory(echelon string) gin.HandlerFunc {
	table := models.InventoryTable(echelon)

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
		query := db.Table(table).Where("owner_uid = ?", user.UID)
		if category := c.Query("category"); category != "" {
			query = query.Where("category = ?", category)
		}

		var items []models.InventoryItem
		if err := query.Order("name").Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to list inventory",
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

// UpdateInventoryItem returns the handler for PUT /inventory/:productID
// for the given echelon. Only the owner may update a listing.
func UpdateInventoryItem(echelon string) gin.HandlerFunc {
	table := models.InventoryTable(echelon)

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

		productID := c.Param("productID")

		db := config.GetDB()
		var item models.InventoryItem
		if err := db.Table(table).Where("owner_uid = ? AND product_id = ?", user.UID, productID).First(&item).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PRODUCT_NOT_FOUND",
					"message": "No such product in your inventory",
				},
			})
			return
		}

		var req UpdateInventoryRequest
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

		updates := make(map[string]interface{})
		if req.Name != "" {
			updates["name"] = req.Name
		}
		if req.Price != nil {
			updates["price"] = *req.Price
		}
		if req.Stock != nil {
			updates["stock"] = *req.Stock
		}
		if req.Category != "" {
			updates["category"] = req.Category
		}
		if req.Image != "" {
			updates["image"] = req.Image
		}

		if len(updates) == 0 {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"data":    item,
			})
			return
		}

		if err := db.Table(table).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update inventory item",
				},
			})
			return
		}

		if err := db.Table(table).Where("id = ?", item.ID).First(&item).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to fetch updated item",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    item,
		})
	}
}

// DeleteInventoryItem returns the handler for DELETE /inventory/:productID
// for the given echelon. Inventory rows are the one entity owners may
// delete outright.
func DeleteInventoryItem(echelon string) gin.HandlerFunc {
	table := models.InventoryTable(echelon)

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

		productID := c.Param("productID")

		db := config.GetDB()
		result := db.Table(table).Where("owner_uid = ? AND product_id = ?", user.UID, productID).Delete(&models.InventoryItem{})
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to delete inventory item",
				},
			})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PRODUCT_NOT_FOUND",
					"message": "No such product in your inventory",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    gin.H{"product_id": productID, "deleted": true},
		})
	}
}

// attachImageURLs fills the computed ImageURL field from the image
// store, when one is configured. Lookup failures leave the field
// empty rather than failing the read.
func attachImageURLs(items []models.InventoryItem) {
	s3Svc := services.GetS3Service()
	if s3Svc == nil {
		return
	}
	for i := range items {
		if items[i].Image == "" {
			continue
		}
		if url, err := s3Svc.GetPresignedURL(items[i].Image); err == nil {
			items[i].ImageURL = url
		}
	}
}
