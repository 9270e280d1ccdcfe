package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/oauth2"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
			return
		}
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.token","token_type":"Bearer","expires_in":3599,"scope":"openid email profile"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ya29.token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"sub":"1098765","email":"Juan.Perez@Example.com","email_verified":true,"given_name":"Juan","family_name":"Pérez","name":"Juan Pérez"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(server *httptest.Server) *GoogleProvider {
	return NewGoogleProvider("client-id", "secret",
		WithGoogleEndpoints(server.URL+"/auth", server.URL+"/token", server.URL+"/userinfo"))
}

func TestGoogleProvider_BuildAuthURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret")

	authURL, verifier, state, err := p.BuildAuthURL("http://localhost:8000/accounts/google/login/callback/")
	require.NoError(t, err)
	require.NotEmpty(t, verifier)
	require.NotEmpty(t, state)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, generateCodeChallenge(verifier), q.Get("code_challenge"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "http://localhost:8000/accounts/google/login/callback/", q.Get("redirect_uri"))
}

func TestGoogleProvider_BuildAuthURL_FreshValues(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret")
	_, v1, s1, err := p.BuildAuthURL("")
	require.NoError(t, err)
	_, v2, s2, err := p.BuildAuthURL("")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
	assert.NotEqual(t, s1, s2)
}

func TestGenerateCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", generateCodeChallenge(verifier))
}

func TestGoogleProvider_ExchangeAndProfile(t *testing.T) {
	server := fakeGoogle(t)
	p := newTestProvider(server)
	ctx := context.Background()

	token, err := p.ExchangeCode(ctx, "good-code", "verifier", "http://localhost/cb")
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", token.AccessToken)
	assert.Equal(t, 3599, token.ExpiresIn)

	profile, err := p.GetProfile(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, &oauth2.Profile{
		Subject:       "1098765",
		Email:         "juan.perez@example.com",
		EmailVerified: true,
		GivenName:     "Juan",
		FamilyName:    "Pérez",
		Name:          "Juan Pérez",
	}, profile)
}

func TestGoogleProvider_ExchangeRejected(t *testing.T) {
	p := newTestProvider(fakeGoogle(t))

	_, err := p.ExchangeCode(context.Background(), "bad-code", "verifier", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestGoogleProvider_ProfileUnauthorized(t *testing.T) {
	p := newTestProvider(fakeGoogle(t))

	_, err := p.GetProfile(context.Background(), "expired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRegisterGoogle(t *testing.T) {
	registry := oauth2.NewRegistry()

	assert.False(t, RegisterGoogle(registry, "", "secret"))
	assert.Empty(t, registry.List())

	assert.True(t, RegisterGoogle(registry, "id", "secret"))
	p, err := registry.Get(GoogleName)
	require.NoError(t, err)
	assert.Equal(t, "id", p.Config().ClientID)
}
