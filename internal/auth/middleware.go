package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signaldrop/internal/config"
	"signaldrop/internal/models"
	"signaldrop/internal/repository"
)

// Middleware resolves the calling account for API routes. With auth
// enabled the request must carry an API key, either as a bearer token
// or in X-API-Key; with auth disabled the X-User-ID header selects the
// account directly, which keeps local development friction-free.
type Middleware struct {
	Repo   repository.UserRepository
	Cfg    config.AuthConfig
	Logger *zap.Logger
}

func (m *Middleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := m.resolve(c)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("auth lookup failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth lookup failed"})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), user))
		c.Next()
	}
}

func (m *Middleware) resolve(c *gin.Context) (*models.User, error) {
	ctx := c.Request.Context()
	if !m.Cfg.Enabled {
		id := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if id == "" {
			id = strings.TrimSpace(c.Query("user_id"))
		}
		if id != "" {
			return m.Repo.GetUserByID(ctx, id)
		}
		return nil, nil
	}
	key := bearerOrHeader(c, "X-API-Key")
	if key == "" {
		return nil, nil
	}
	return m.Repo.GetUserByAPIKey(ctx, key)
}

// RequireAdmin guards operator endpoints with the configured token. An
// empty token is only acceptable while auth as a whole is disabled.
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(m.Cfg.AdminToken)
		if token == "" {
			if m.Cfg.Enabled {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access not configured"})
				return
			}
			c.Next()
			return
		}
		got := bearerOrHeader(c, "X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}

func bearerOrHeader(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
