package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"beresin/internal/models"
)

const (
	principalContextKey = "auth_principal"
	authTokenContextKey = "auth_token"
)

// Middleware validates bearer tokens and stores the authenticated principal
// in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authorization required"})
			return
		}
		principal, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.Set(principalContextKey, principal)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// RequireRole aborts unless the authenticated principal has the given role.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "forbidden"})
			return
		}
		c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated principal from the gin context.
func PrincipalFromContext(c *gin.Context) (models.Principal, bool) {
	val, ok := c.Get(principalContextKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := val.(models.Principal)
	return principal, ok
}

// AuthTokenFromContext retrieves the bearer token captured by the middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(authTokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
