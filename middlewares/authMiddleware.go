package middlewares

import (
	"net/http"
	"strings"

	"github.com/eppcloud/epp_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const adminRole = "admin"

// Auth validates the bearer token and stashes the caller's identity into
// the request context for the model layer. Identity issuance lives outside
// this service; only validation happens here.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		token, err := utils.JwtValidate(tokenString)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetUserIdInContext(ctx, claims.ID)
		ctx = utils.SetUserRoleInContext(ctx, claims.Role)
		ctx = utils.SetIsAdminInContext(ctx, strings.EqualFold(claims.Role, adminRole))
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId(c))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole gates a route to the named roles. Admins always pass; must run
// after Auth so the role is already in the context.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if isAdmin, ok := utils.GetIsAdminFromContext(ctx); ok && isAdmin {
			c.Next()
			return
		}
		role, _ := utils.GetUserRoleFromContext(ctx)
		for _, allowed := range roles {
			if strings.EqualFold(role, allowed) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

func correlationId(c *gin.Context) string {
	if id := c.GetHeader("X-Correlation-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
