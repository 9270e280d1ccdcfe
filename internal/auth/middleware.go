package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/config"
	"github.com/mrlokans/biblioteca/internal/entities"
)

const (
	ContextKeyUserID   = "auth_user_id"
	ContextKeyUsername = "auth_username"
	ContextKeyRole     = "auth_role"
	ContextKeyAuthType = "auth_type"
	ContextKeyScopes   = "auth_scopes"
)

// AuthType indicates how the user was authenticated
type AuthType string

const (
	AuthTypeNone     AuthType = "none"
	AuthTypeSession  AuthType = "session"
	AuthTypeJWT      AuthType = "jwt"
	AuthTypeAPIToken AuthType = "api_token"
)

// DefaultUserID is used when authentication is disabled or the request is
// anonymous.
const DefaultUserID = uint(0)

// Middleware authenticates requests and applies the API permission policy:
// safe methods on /api/ are public, writes need a user whose token carries
// the write scope.
type Middleware struct {
	service        *Service
	sessionManager *SessionManager
	issuer         *TokenIssuer
	config         config.Auth
	publicPaths    map[string]bool
	publicPrefixes []string
}

func NewMiddleware(service *Service, sessionManager *SessionManager, issuer *TokenIssuer, cfg config.Auth) *Middleware {
	return &Middleware{
		service:        service,
		sessionManager: sessionManager,
		issuer:         issuer,
		config:         cfg,
		publicPaths: map[string]bool{
			"/":             true,
			"/health":       true,
			"/ping":         true,
			"/login":        true,
			"/setup":        true,
			"/oauth/login/": true,
			"/login/jwt/":   true,
			"/favicon.ico":  true,
		},
		publicPrefixes: []string{
			"/static/",
			"/accounts/google/",
			"/api/token/",
			"/o/",
		},
	}
}

// Handler returns a Gin middleware handler that authenticates requests.
func (m *Middleware) Handler() gin.HandlerFunc {
	if m.config.Mode == config.AuthModeNone {
		return m.noAuthHandler()
	}
	return m.authHandler()
}

// noAuthHandler treats every request as the default admin.
func (m *Middleware) noAuthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyUserID, DefaultUserID)
		c.Set(ContextKeyRole, entities.UserRoleAdmin)
		c.Set(ContextKeyAuthType, AuthTypeNone)
		c.Next()
	}
}

func (m *Middleware) authHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, claims, authType, ok := m.tryBearerAuth(c); ok {
			m.setUserContext(c, user, authType)
			if claims != nil {
				c.Set(ContextKeyScopes, claims.Scopes())
				if !isSafeMethod(c.Request.Method) && !claims.HasScope(entities.ScopeWrite) {
					c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
						"error": "token lacks the write scope",
					})
					return
				}
			}
			c.Next()
			return
		} else if c.GetHeader("Authorization") != "" && m.isAPIRequest(c) && !m.isPublicPath(c.Request.URL.Path) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		if user := m.trySessionAuth(c); user != nil {
			m.setUserContext(c, user, AuthTypeSession)
			c.Next()
			return
		}

		c.Set(ContextKeyUserID, DefaultUserID)
		c.Set(ContextKeyAuthType, AuthTypeNone)

		if m.isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			if isSafeMethod(c.Request.Method) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		if m.isAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		redirectToLogin(c)
	}
}

// tryBearerAuth accepts a JWT access token first, then a static API token.
// Claims are nil for API tokens, which carry full access.
func (m *Middleware) tryBearerAuth(c *gin.Context) (*entities.User, *Claims, AuthType, bool) {
	token := bearerToken(c)
	if token == "" {
		return nil, nil, "", false
	}

	if m.issuer != nil {
		if claims, err := m.issuer.ParseAccess(token); err == nil {
			userID, err := claims.UserID()
			if err != nil {
				return nil, nil, "", false
			}
			user, err := m.service.GetUserByID(userID)
			if err != nil {
				return nil, nil, "", false
			}
			return user, claims, AuthTypeJWT, true
		}
	}

	user, err := m.service.ValidateToken(token)
	if err != nil {
		return nil, nil, "", false
	}
	return user, nil, AuthTypeAPIToken, true
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (m *Middleware) trySessionAuth(c *gin.Context) *entities.User {
	if m.sessionManager == nil {
		return nil
	}

	userID := m.sessionManager.GetUserID(c.Request)
	if userID == 0 {
		return nil
	}

	user, err := m.service.GetUserByID(userID)
	if err != nil {
		return nil
	}
	return user
}

func (m *Middleware) setUserContext(c *gin.Context, user *entities.User, authType AuthType) {
	c.Set(ContextKeyUserID, user.ID)
	c.Set(ContextKeyUsername, user.Username)
	c.Set(ContextKeyRole, user.Role)
	c.Set(ContextKeyAuthType, authType)
}

func (m *Middleware) isPublicPath(path string) bool {
	if m.publicPaths[path] {
		return true
	}
	for _, prefix := range m.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// isAPIRequest determines if this is an API request vs web browser request.
func (m *Middleware) isAPIRequest(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	return c.GetHeader("Authorization") != ""
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.Path))
	c.Abort()
}

// RequireAuth rejects anonymous requests, including safe ones.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.config.Mode == config.AuthModeNone || GetUserID(c) != 0 {
			c.Next()
			return
		}
		if m.isAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		redirectToLogin(c)
	}
}

// RequireRole returns a middleware that requires one of the given roles.
func (m *Middleware) RequireRole(roles ...entities.UserRole) gin.HandlerFunc {
	roleSet := make(map[entities.UserRole]bool)
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		if m.config.Mode == config.AuthModeNone {
			c.Next()
			return
		}

		if GetUserID(c) == 0 {
			if m.isAPIRequest(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "authentication required",
				})
			} else {
				redirectToLogin(c)
			}
			return
		}

		if !roleSet[GetUserRole(c)] {
			if m.isAPIRequest(c) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "insufficient permissions",
				})
			} else {
				c.AbortWithStatus(http.StatusForbidden)
			}
			return
		}
		c.Next()
	}
}

// RequireStaff allows admins and librarians.
func (m *Middleware) RequireStaff() gin.HandlerFunc {
	return m.RequireRole(entities.UserRoleAdmin, entities.UserRoleLibrarian)
}

// GetUserID returns DefaultUserID (0) if not authenticated or auth is disabled.
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextKeyUserID); exists {
		if userID, ok := id.(uint); ok {
			return userID
		}
	}
	return DefaultUserID
}

func GetUsername(c *gin.Context) string {
	if name, exists := c.Get(ContextKeyUsername); exists {
		if username, ok := name.(string); ok {
			return username
		}
	}
	return ""
}

func GetUserRole(c *gin.Context) entities.UserRole {
	if r, exists := c.Get(ContextKeyRole); exists {
		if role, ok := r.(entities.UserRole); ok {
			return role
		}
	}
	return ""
}

func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}

// GetScopes returns the scopes of a JWT-authenticated request, or nil.
func GetScopes(c *gin.Context) []string {
	if s, exists := c.Get(ContextKeyScopes); exists {
		if scopes, ok := s.([]string); ok {
			return scopes
		}
	}
	return nil
}

// IsStaff reports whether the request acts with admin or librarian rights.
func IsStaff(c *gin.Context) bool {
	return GetUserRole(c).IsStaff()
}

// IsAuthenticated returns true if the request is authenticated.
func IsAuthenticated(c *gin.Context) bool {
	return GetUserID(c) != 0 || GetUserRole(c) == entities.UserRoleAdmin
}
