package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/services"
	"github.com/yoockh/yoscribe/internal/utils"
)

type apiError struct {
	Error string `json:"error"`
}

// AdminSession accepts the admin session token from the "auth" query
// parameter or an Authorization bearer header.
func AdminSession(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.Query("auth"))
		if raw == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}

		if err := auth.VerifyAdminToken(raw); err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Error: utils.MessageOf(err)})
			return
		}

		c.Set("role", "admin")
		c.Next()
	}
}
