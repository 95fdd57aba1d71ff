package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/healthbridge/booking-api/internal/handler"
	"github.com/healthbridge/booking-api/pkg/auth"
)

// ContextCallerID is the gin context key carrying the authenticated caller.
const ContextCallerID = "caller_id"

// AuthMiddleware verifies the identity token issued by the platform's auth
// service. Authorization policy is not this core's concern; it only needs a
// trustworthy caller identity for lock ownership and booking attribution.
type AuthMiddleware struct {
	jwtSvc *auth.JWTService
}

func NewAuthMiddleware(jwtSvc *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtSvc: jwtSvc}
}

func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.jwtSvc.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextCallerID, claims.CallerID)
		c.Set("caller_role", claims.Role)
		c.Next()
	}
}
