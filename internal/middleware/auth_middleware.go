package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Baaaki/mealmender/internal/models"
	"github.com/Baaaki/mealmender/internal/utils"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID   = "user_id"
	ContextEmail    = "user_email"
	ContextUsername = "username"
	ContextRole     = "user_role"
	ContextClaims   = "claims"

	// TokenCookie is the HTTP-only cookie signup and login set.
	TokenCookie = "token"
)

// UserLookup loads a live (not deleted) user, returning nil when there is none.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware accepts a bearer token, a token query parameter (browsers
// cannot set headers on a websocket upgrade) or the token cookie, in that order.
// The token only proves identity: the user is reloaded on every request and
// the stored role wins over the role in the claims.
func AuthMiddleware(jwtSecret string, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Not authorized, no token",
			})
			return
		}

		claims, err := utils.ValidateToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Not authorized, token failed",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Log.Error("Failed to load session user",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Server error",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Not authorized, user not found",
			})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextEmail, user.Email)
		c.Set(ContextUsername, user.Username)
		c.Set(ContextRole, string(user.Role))
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Not authorized",
			})
			return
		}

		if role != string(models.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied, admin only",
			})
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func Role(c *gin.Context) models.Role {
	return models.Role(c.GetString(ContextRole))
}

func Username(c *gin.Context) string {
	return c.GetString(ContextUsername)
}
