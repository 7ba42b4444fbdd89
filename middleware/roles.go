package middleware

import (
	"net/http"

	"github.com/echelonmarket/echelon-api/config"
	"github.com/echelonmarket/echelon-api/models"
	"github.com/gin-gonic/gin"
)

// RequireRole loads the caller's profile by uid and rejects the
// request unless the account holds one of the given roles. The loaded
// user is stored in the context for handlers.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		uid, err := GetUserID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Could not extract user information",
				},
			})
			c.Abort()
			return
		}

		db := config.GetDB()
		var user models.User
		if err := db.Where("uid = ?", uid).First(&user).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User profile not found. Please create a profile first.",
				},
			})
			c.Abort()
			return
		}

		if !allowed[user.Role] {
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Your role does not permit this operation",
				},
			})
			c.Abort()
			return
		}

		c.Set("current_user", user)
		c.Next()
	}
}

// CurrentUser returns the profile loaded by RequireRole.
func CurrentUser(c *gin.Context) (models.User, error) {
	v, exists := c.Get("current_user")
	if !exists {
		return models.User{}, &AuthError{Code: "MISSING_USER", Message: "User not loaded; RequireRole middleware missing"}
	}

	user, ok := v.(models.User)
	if !ok {
		return models.User{}, &AuthError{Code: "INVALID_USER", Message: "User in context has unexpected type"}
	}

	return user, nil
}
