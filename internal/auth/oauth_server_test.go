package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/entities"
)

type tokenServer struct {
	*authFixture
	router *gin.Engine
	app    *entities.OAuthApplication
	secret string
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	f := newFixture(t)
	f.user(t, "juan_perez", "lectura2024", entities.UserRoleMember)
	app, secret := f.app(t, "biblioteca-cli", "read write")

	router := gin.New()
	NewTokenController(f.service, f.issuer, f.clients).RegisterRoutes(router)
	return &tokenServer{authFixture: f, router: router, app: app, secret: secret}
}

func (s *tokenServer) post(path string, form url.Values, basic bool) *httptest.ResponseRecorder {
	if !basic && form.Get("client_id") == "" {
		form.Set("client_id", s.app.ClientID)
		form.Set("client_secret", s.secret)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basic {
		req.SetBasicAuth(s.app.ClientID, s.secret)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestTokenEndpoint_PasswordGrant(t *testing.T) {
	s := newTokenServer(t)

	for _, basic := range []bool{false, true} {
		name := "form credentials"
		if basic {
			name = "basic credentials"
		}
		t.Run(name, func(t *testing.T) {
			rr := s.post("/o/token/", url.Values{
				"grant_type": {"password"},
				"username":   {"juan_perez"},
				"password":   {"lectura2024"},
			}, basic)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

			body := decode(t, rr)
			assert.Equal(t, "Bearer", body["token_type"])
			assert.Equal(t, "read write", body["scope"])
			assert.EqualValues(t, 3600, body["expires_in"])

			claims, err := s.issuer.ParseAccess(body["access_token"].(string))
			require.NoError(t, err)
			assert.Equal(t, "biblioteca-cli", claims.ClientID)
		})
	}
}

func TestTokenEndpoint_ReadScope(t *testing.T) {
	s := newTokenServer(t)

	rr := s.post("/o/token/", url.Values{
		"grant_type": {"password"},
		"username":   {"juan_perez"},
		"password":   {"lectura2024"},
		"scope":      {"read"},
	}, false)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "read", body["scope"])

	claims, err := s.issuer.ParseAccess(body["access_token"].(string))
	require.NoError(t, err)
	assert.False(t, claims.HasScope(entities.ScopeWrite))
}

func TestTokenEndpoint_Errors(t *testing.T) {
	s := newTokenServer(t)

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantError  string
	}{
		{
			name:       "wrong client secret",
			form:       url.Values{"grant_type": {"password"}, "client_id": {"biblioteca-cli"}, "client_secret": {"nope"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "unknown client",
			form:       url.Values{"grant_type": {"password"}, "client_id": {"otro"}, "client_secret": {"x"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "missing grant type",
			form:       url.Values{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "unsupported grant",
			form:       url.Values{"grant_type": {"client_credentials"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "bad credentials",
			form:       url.Values{"grant_type": {"password"}, "username": {"juan_perez"}, "password": {"incorrecta"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name:       "scope not allowed",
			form:       url.Values{"grant_type": {"password"}, "username": {"juan_perez"}, "password": {"lectura2024"}, "scope": {"admin"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_scope",
		},
		{
			name:       "bogus refresh token",
			form:       url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"abc"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.post("/o/token/", tt.form, false)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantError, decode(t, rr)["error"])
		})
	}
}

func TestTokenEndpoint_BasicFailureChallenges(t *testing.T) {
	s := newTokenServer(t)
	s.secret = "wrong"

	rr := s.post("/o/token/", url.Values{"grant_type": {"password"}}, true)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
}

func TestTokenEndpoint_RefreshGrantAndRevoke(t *testing.T) {
	s := newTokenServer(t)

	rr := s.post("/o/token/", url.Values{
		"grant_type": {"password"}, "username": {"juan_perez"}, "password": {"lectura2024"},
	}, false)
	require.Equal(t, http.StatusOK, rr.Code)
	first := decode(t, rr)["refresh_token"].(string)

	rr = s.post("/o/token/", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first}}, false)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decode(t, rr)["refresh_token"].(string)

	rr = s.post("/o/token/", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {first}}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "rotated token cannot be reused")

	rr = s.post("/o/revoke_token/", url.Values{"token": {second}}, false)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.post("/o/token/", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {second}}, false)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.post("/o/revoke_token/", url.Values{"token": {"unknown"}}, false)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestJWTEndpoints(t *testing.T) {
	s := newTokenServer(t)

	rr := postJSON(s.router, "/api/token/", `{"username":"juan_perez","password":"incorrecta"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(s.router, "/api/token/", `{"username":"juan_perez"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(s.router, "/api/token/", `{"username":"juan_perez","password":"lectura2024"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	pair := decode(t, rr)
	access, refresh := pair["access"].(string), pair["refresh"].(string)

	rr = postJSON(s.router, "/api/token/verify/", `{"token":"`+access+`"}`)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = postJSON(s.router, "/api/token/verify/", `{"token":"garbage"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(s.router, "/api/token/refresh/", `{"refresh":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEqual(t, refresh, decode(t, rr)["refresh"])

	rr = postJSON(s.router, "/api/token/refresh/", `{"refresh":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGrantedScopes(t *testing.T) {
	readOnly := &entities.OAuthApplication{Scopes: "read"}
	open := &entities.OAuthApplication{}

	got, err := grantedScopes(readOnly, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, got)

	_, err = grantedScopes(readOnly, "read write")
	assert.Error(t, err)

	got, err = grantedScopes(open, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultScopes, got)
}
