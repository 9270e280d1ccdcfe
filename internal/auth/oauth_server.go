package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/entities"
)

// OAuth2 error codes from RFC 6749 section 5.2.
const (
	oauthInvalidRequest       = "invalid_request"
	oauthInvalidClient        = "invalid_client"
	oauthInvalidGrant         = "invalid_grant"
	oauthInvalidScope         = "invalid_scope"
	oauthUnsupportedGrantType = "unsupported_grant_type"
	oauthServerError          = "server_error"

	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
)

// ClientStore looks up registered OAuth applications.
type ClientStore interface {
	GetApplication(clientID string) (*entities.OAuthApplication, error)
}

// TokenController serves the JWT endpoints under /api/token/ and the OAuth2
// token and revocation endpoints under /o/.
type TokenController struct {
	service *Service
	issuer  *TokenIssuer
	clients ClientStore
	auditor LoginAuditor
}

func NewTokenController(service *Service, issuer *TokenIssuer, clients ClientStore) *TokenController {
	return &TokenController{service: service, issuer: issuer, clients: clients}
}

// SetAuditor records password grants through a.
func (tc *TokenController) SetAuditor(a LoginAuditor) {
	tc.auditor = a
}

func (tc *TokenController) logAuth(c *gin.Context, userID uint, success bool) {
	if tc.auditor != nil {
		tc.auditor.LogAuth(userID, "token_obtain", c.ClientIP(), c.Request.UserAgent(), success)
	}
}

// RegisterRoutes mounts the token endpoints. Extra handlers, such as a
// throttle, run before each endpoint.
func (tc *TokenController) RegisterRoutes(router gin.IRoutes, pre ...gin.HandlerFunc) {
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(slices.Clone(pre), h)
	}
	router.POST("/api/token/", with(tc.ObtainPair)...)
	router.POST("/api/token/refresh/", with(tc.RefreshPair)...)
	router.POST("/api/token/verify/", with(tc.VerifyToken)...)
	router.POST("/o/token/", with(tc.Token)...)
	router.POST("/o/revoke_token/", with(tc.RevokeToken)...)
}

// ObtainPair exchanges username and password for an access/refresh pair.
func (tc *TokenController) ObtainPair(c *gin.Context) {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.ShouldBind(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := tc.service.Authenticate(req.Username, req.Password)
	tc.logAuth(c, userIDOf(user), err == nil)
	if err != nil {
		msg := "no active account found with the given credentials"
		if errors.Is(err, ErrAccountLocked) {
			msg = "account is locked, try again later"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	pair, err := tc.issuer.Issue(user, nil, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": pair.Access, "refresh": pair.Refresh})
}

// RefreshPair rotates a first-party refresh token.
func (tc *TokenController) RefreshPair(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" form:"refresh"`
	}
	if err := c.ShouldBind(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh is required"})
		return
	}

	pair, err := tc.issuer.Refresh(req.Refresh, "", nil)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is invalid or expired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": pair.Access, "refresh": pair.Refresh})
}

// VerifyToken reports whether a token of either kind is still valid.
func (tc *TokenController) VerifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" form:"token"`
	}
	if err := c.ShouldBind(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if _, err := tc.issuer.Verify(req.Token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is invalid or expired"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Token implements the OAuth2 token endpoint for the password and
// refresh_token grants.
func (tc *TokenController) Token(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")

	app, usedBasic, ok := tc.authenticateClient(c)
	if !ok {
		if usedBasic {
			c.Header("WWW-Authenticate", `Basic realm="biblioteca"`)
		}
		oauthError(c, http.StatusUnauthorized, oauthInvalidClient, "client authentication failed")
		return
	}

	switch grant := c.PostForm("grant_type"); grant {
	case GrantPassword:
		tc.passwordGrant(c, app)
	case GrantRefreshToken:
		tc.refreshGrant(c, app)
	case "":
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "grant_type is required")
	default:
		oauthError(c, http.StatusBadRequest, oauthUnsupportedGrantType, "grant type "+grant+" is not supported")
	}
}

func (tc *TokenController) passwordGrant(c *gin.Context, app *entities.OAuthApplication) {
	username, password := c.PostForm("username"), c.PostForm("password")
	if username == "" || password == "" {
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "username and password are required")
		return
	}

	scopes, err := grantedScopes(app, c.PostForm("scope"))
	if err != nil {
		oauthError(c, http.StatusBadRequest, oauthInvalidScope, err.Error())
		return
	}

	user, err := tc.service.Authenticate(username, password)
	tc.logAuth(c, userIDOf(user), err == nil)
	if err != nil {
		oauthError(c, http.StatusBadRequest, oauthInvalidGrant, "invalid credentials given")
		return
	}

	pair, err := tc.issuer.Issue(user, scopes, app)
	if err != nil {
		oauthError(c, http.StatusInternalServerError, oauthServerError, "failed to issue token")
		return
	}
	writeTokenResponse(c, pair)
}

func (tc *TokenController) refreshGrant(c *gin.Context, app *entities.OAuthApplication) {
	refresh := c.PostForm("refresh_token")
	if refresh == "" {
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "refresh_token is required")
		return
	}

	pair, err := tc.issuer.Refresh(refresh, app.ClientID, app)
	if err != nil {
		oauthError(c, http.StatusBadRequest, oauthInvalidGrant, "refresh token is invalid, expired or revoked")
		return
	}
	writeTokenResponse(c, pair)
}

// RevokeToken revokes a refresh token. Per RFC 7009 an unknown token still
// yields 200.
func (tc *TokenController) RevokeToken(c *gin.Context) {
	app, usedBasic, ok := tc.authenticateClient(c)
	if !ok {
		if usedBasic {
			c.Header("WWW-Authenticate", `Basic realm="biblioteca"`)
		}
		oauthError(c, http.StatusUnauthorized, oauthInvalidClient, "client authentication failed")
		return
	}

	token := c.PostForm("token")
	if token == "" {
		oauthError(c, http.StatusBadRequest, oauthInvalidRequest, "token is required")
		return
	}

	if claims, err := tc.issuer.Verify(token); err == nil && claims.ClientID == app.ClientID {
		_ = tc.issuer.Revoke(token)
	}
	c.Status(http.StatusOK)
}

// authenticateClient accepts HTTP Basic credentials or client_id and
// client_secret form fields.
func (tc *TokenController) authenticateClient(c *gin.Context) (*entities.OAuthApplication, bool, bool) {
	clientID, secret, usedBasic := c.Request.BasicAuth()
	if !usedBasic {
		clientID, secret = c.PostForm("client_id"), c.PostForm("client_secret")
	}
	if clientID == "" || secret == "" {
		return nil, usedBasic, false
	}

	app, err := tc.clients.GetApplication(clientID)
	if err != nil {
		return nil, usedBasic, false
	}
	if CheckPassword(secret, app.SecretHash) != nil {
		return nil, usedBasic, false
	}
	return app, usedBasic, true
}

// grantedScopes validates a requested scope string against what the
// application may use. An empty request grants everything allowed.
func grantedScopes(app *entities.OAuthApplication, requested string) ([]string, error) {
	allowed := app.AllowedScopes()
	if len(allowed) == 0 {
		allowed = DefaultScopes
	}

	want := strings.Fields(requested)
	if len(want) == 0 {
		return allowed, nil
	}
	for _, s := range want {
		if !slices.Contains(allowed, s) {
			return nil, errors.New("scope " + s + " is not allowed for this client")
		}
	}
	return want, nil
}

func writeTokenResponse(c *gin.Context, pair *TokenPair) {
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.Access,
		"token_type":    "Bearer",
		"expires_in":    pair.ExpiresIn,
		"refresh_token": pair.Refresh,
		"scope":         pair.Scope,
	})
}

func oauthError(c *gin.Context, status int, code, description string) {
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": description,
	})
}

func userIDOf(user *entities.User) uint {
	if user == nil {
		return 0
	}
	return user.ID
}
