package auth

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/oauth2"
)

// GoogleLoginController signs users in with their Google account.
type GoogleLoginController struct {
	service        *Service
	sessionManager *SessionManager
	flow           *oauth2.FlowHandler
	redirectURL    string
}

func NewGoogleLoginController(service *Service, sm *SessionManager, provider oauth2.Provider, redirectURL string) *GoogleLoginController {
	return &GoogleLoginController{
		service:        service,
		sessionManager: sm,
		flow:           oauth2.NewFlowHandler(provider),
		redirectURL:    redirectURL,
	}
}

func (gc *GoogleLoginController) RegisterRoutes(router gin.IRoutes) {
	router.GET("/accounts/google/login/", gc.Login)
	router.GET("/accounts/google/login/callback/", gc.Callback)
}

// Login starts the flow and remembers state and verifier in the session.
func (gc *GoogleLoginController) Login(c *gin.Context) {
	authURL, state, verifier, err := gc.flow.StartWebFlow(gc.callbackURL(c))
	if err != nil {
		log.Printf("[AUTH] google login start failed: %v", err)
		c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("Google sign-in is unavailable"))
		return
	}

	gc.sessionManager.beginOAuth(c.Request.Context(), pendingOAuth{
		State:    state,
		Verifier: verifier,
		Next:     sanitizeRedirectPath(c.Query("next")),
	})

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the flow, resolves the local user and opens a session.
func (gc *GoogleLoginController) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	pending := gc.sessionManager.takeOAuth(ctx)
	next := sanitizeRedirectPath(pending.Next)

	profile, err := gc.flow.CompleteWebFlow(ctx, oauth2.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}, pending.Verifier, gc.callbackURL(c), pending.State)
	if err != nil {
		msg := "Google sign-in failed"
		if errors.Is(err, oauth2.ErrAuthorizationDenied) {
			msg = "Google sign-in was cancelled"
		}
		log.Printf("[AUTH] google callback failed: %v", err)
		c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape(msg))
		return
	}

	user, err := gc.service.FindOrCreateGoogleUser(GoogleProfile{
		Subject:       profile.Subject,
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		GivenName:     profile.GivenName,
		FamilyName:    profile.FamilyName,
	})
	if err != nil {
		msg := "Could not sign in with this Google account"
		if errors.Is(err, ErrEmailNotVerified) {
			msg = "Your Google email address is not verified"
		}
		log.Printf("[AUTH] google user resolution failed: %v", err)
		c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape(msg))
		return
	}

	if err := gc.sessionManager.CreateSession(c.Request, user, LoginMethodGoogle); err != nil {
		c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("Failed to create session"))
		return
	}
	c.Redirect(http.StatusFound, next)
}

// callbackURL prefers the configured redirect and otherwise derives it from
// the request host.
func (gc *GoogleLoginController) callbackURL(c *gin.Context) string {
	if gc.redirectURL != "" {
		return gc.redirectURL
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/accounts/google/login/callback/"
}
