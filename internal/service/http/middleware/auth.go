package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/gen-hub/internal/modules/auth"
	"github.com/reusedev/gen-hub/internal/service/http/handler/response"
)

// BearerAuth resolves the bearer token to a user id and stores it on the
// request context. Everything behind it can assume "user_id" is set.
func BearerAuth(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
		userId, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Unauthorized)
			return
		}
		c.Set("user_id", userId)
		c.Next()
	}
}
