package demo

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const blockedMessage = "This action is disabled in demo mode"

// ContextKeyDemoMode carries the demo flag into page templates.
const ContextKeyDemoMode = "demo_mode"

// Middleware makes the public demo read-only. Safe methods pass, and so do
// the sign-in and token endpoints so visitors can try the auth flows.
type Middleware struct {
	enabled      bool
	allowed      []string
	allowedExact map[string]bool
}

func NewMiddleware(enabled bool) *Middleware {
	return &Middleware{
		enabled: enabled,
		allowed: []string{
			"/api/token/",
			"/o/token/",
			"/o/revoke_token/",
			"/accounts/google/",
		},
		allowedExact: map[string]bool{
			"/login":  true,
			"/logout": true,
		},
	}
}

func (m *Middleware) IsEnabled() bool {
	return m.enabled
}

func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if m.isAllowedPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		m.respondBlocked(c)
	}
}

func (m *Middleware) isAllowedPath(path string) bool {
	if m.allowedExact[path] {
		return true
	}
	for _, prefix := range m.allowed {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *Middleware) respondBlocked(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":     blockedMessage,
			"code":      "DEMO_MODE",
			"demo_mode": true,
		})
		return
	}
	c.String(http.StatusForbidden, blockedMessage)
	c.Abort()
}

// InjectContext exposes the demo flag to handlers rendering pages.
func (m *Middleware) InjectContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyDemoMode, m.enabled)
		c.Next()
	}
}
