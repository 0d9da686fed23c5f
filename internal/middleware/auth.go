package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/internal/utils"
	"github.com/huangang/erpsettings/pkg/logger"
	"github.com/huangang/erpsettings/pkg/response"
)

const (
	ContextUserID      = "user_id"
	ContextUsername    = "username"
	ContextRole        = "role"
	ContextPermissions = "permissions"
)

// PermissionResolver maps a role to the permissions it grants.
type PermissionResolver func(role string) []string

// AuthRequired checks the bearer token and stores the caller and the
// permissions of its role in the context.
func AuthRequired(resolve PermissionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		var perms []string
		if resolve != nil {
			perms = resolve(claims.Role)
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextPermissions, perms)

		c.Next()
	}
}

// RequirePermission rejects callers holding none of perms.
func RequirePermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ActorFromContext(c).CanAny(perms) {
			c.JSON(http.StatusForbidden, response.Response{Code: http.StatusForbidden, Message: "permission denied"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActorFromContext builds the identity the settings services act for.
func ActorFromContext(c *gin.Context) services.Actor {
	a := services.Actor{
		Username:    GetUsername(c),
		Permissions: GetPermissions(c),
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		RequestID:   logger.RequestID(c),
	}
	if id := GetUserID(c); id > 0 {
		a.UserID = &id
	}
	return a
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		if v, ok := id.(uint); ok {
			return v
		}
	}
	return 0
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ContextUsername)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

func GetPermissions(c *gin.Context) []string {
	return c.GetStringSlice(ContextPermissions)
}
