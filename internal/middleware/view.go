package middleware

import (
	"net/http"
	"strings"

	"deskbridge/internal/models"
	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	// ViewHeader names the calling view when tokens are not required
	ViewHeader = "X-View-Label"
	viewKey    = "deskbridge.view"
)

// tokenFromRequest reads a bearer token from the Authorization header,
// falling back to the token query parameter used by websocket clients
func tokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}

// ViewMiddleware resolves which view a request comes from. A presented token
// always has to be valid; without one the request is rejected when required is
// set, otherwise the view comes from the X-View-Label header or view query
// parameter and defaults to "main".
func ViewMiddleware(auth *services.AuthService, required bool, sl *SecurityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := tokenFromRequest(c); token != "" {
			claims, err := auth.ValidateToken(token)
			if err != nil {
				sl.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(viewKey, claims.View)
			c.Next()
			return
		}

		if required {
			sl.LogFailedAuth(c.ClientIP(), "missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		view := c.GetHeader(ViewHeader)
		if view == "" {
			view = c.Query("view")
		}
		if view == "" {
			view = models.DefaultView
		}
		if err := services.ValidateViewLabel(view); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.Set(viewKey, view)
		c.Next()
	}
}

// ViewFromContext returns the view resolved by ViewMiddleware
func ViewFromContext(c *gin.Context) string {
	if view := c.GetString(viewKey); view != "" {
		return view
	}
	return models.DefaultView
}
