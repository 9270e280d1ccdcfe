package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/oauth2"
)

type fakeGoogle struct {
	profile oauth2.Profile
}

func (p *fakeGoogle) Name() string                  { return "google" }
func (p *fakeGoogle) Config() oauth2.ProviderConfig { return oauth2.ProviderConfig{ClientID: "gid"} }

func (p *fakeGoogle) BuildAuthURL(redirectURL string) (string, string, string, error) {
	return "https://accounts.google.test/auth?redirect_uri=" + url.QueryEscape(redirectURL), "verifier-1", "state-1", nil
}

func (p *fakeGoogle) ExchangeCode(ctx context.Context, code, verifier, redirectURL string) (*oauth2.TokenResponse, error) {
	if code != "good-code" || verifier != "verifier-1" {
		return nil, fmt.Errorf("bad code %q", code)
	}
	return &oauth2.TokenResponse{AccessToken: "at"}, nil
}

func (p *fakeGoogle) GetProfile(ctx context.Context, accessToken string) (*oauth2.Profile, error) {
	profile := p.profile
	return &profile, nil
}

func googleRouter(t *testing.T, provider *fakeGoogle) (*gin.Engine, *authFixture) {
	t.Helper()
	f := newFixture(t)
	sm := f.sessionManager(t)

	router := gin.New()
	router.Use(sm.SessionLoadSave())
	NewGoogleLoginController(f.service, sm, provider, "http://biblioteca.test/accounts/google/login/callback/").RegisterRoutes(router)
	router.GET("/whoami", func(c *gin.Context) {
		data := sm.GetSessionData(c.Request)
		if data == nil {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": data.UserID, "username": data.Username, "method": data.Method})
	})
	return router, f
}

func get(router http.Handler, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGoogleLogin_CreatesMemberAndSession(t *testing.T) {
	router, f := googleRouter(t, &fakeGoogle{profile: oauth2.Profile{
		Subject:       "1089",
		Email:         "maria.lopez@example.com",
		EmailVerified: true,
		GivenName:     "María",
		FamilyName:    "López",
	}})

	rr := get(router, "/accounts/google/login/?next=/prestamos", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "https://accounts.google.test/auth")
	assert.Contains(t, rr.Header().Get("Location"), url.QueryEscape("http://biblioteca.test/accounts/google/login/callback/"))
	cookie := sessionCookie(t, rr.Header())

	rr = get(router, "/accounts/google/login/callback/?code=good-code&state=state-1", cookie)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/prestamos", rr.Header().Get("Location"))
	cookie = sessionCookie(t, rr.Header())

	rr = get(router, "/whoami", cookie)
	assert.JSONEq(t, `{"user_id":1,"username":"maria.lopez","method":"google"}`, rr.Body.String())

	count, err := f.service.GetUserCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGoogleLogin_CallbackFailures(t *testing.T) {
	verified := oauth2.Profile{Subject: "1", Email: "a@example.com", EmailVerified: true}
	unverified := oauth2.Profile{Subject: "2", Email: "b@example.com"}

	tests := []struct {
		name     string
		profile  oauth2.Profile
		callback string
		wantMsg  string
	}{
		{"state mismatch", verified, "?code=good-code&state=forged", "Google sign-in failed"},
		{"denied", verified, "?error=access_denied&state=state-1", "Google sign-in was cancelled"},
		{"exchange rejected", verified, "?code=stolen&state=state-1", "Google sign-in failed"},
		{"email not verified", unverified, "?code=good-code&state=state-1", "Your Google email address is not verified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := googleRouter(t, &fakeGoogle{profile: tt.profile})

			rr := get(router, "/accounts/google/login/", nil)
			cookie := sessionCookie(t, rr.Header())

			rr = get(router, "/accounts/google/login/callback/"+tt.callback, cookie)
			require.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, "/login?error="+url.QueryEscape(tt.wantMsg), rr.Header().Get("Location"))
		})
	}
}

func TestGoogleLogin_CallbackWithoutSession(t *testing.T) {
	router, _ := googleRouter(t, &fakeGoogle{})

	rr := get(router, "/accounts/google/login/callback/?code=good-code&state=state-1", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login?error=")
}

func TestGoogleLogin_RejectsExternalNext(t *testing.T) {
	router, _ := googleRouter(t, &fakeGoogle{profile: oauth2.Profile{Subject: "7", Email: "c@example.com", EmailVerified: true}})

	rr := get(router, "/accounts/google/login/?next=https://evil.example", nil)
	cookie := sessionCookie(t, rr.Header())

	rr = get(router, "/accounts/google/login/callback/?code=good-code&state=state-1", cookie)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}
