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

type loginApp struct {
	*authFixture
	router *gin.Engine
}

func newLoginApp(t *testing.T) *loginApp {
	t.Helper()
	f := newFixture(t)
	sm := f.sessionManager(t)
	ac, err := NewAuthController(f.service, sm, t.TempDir(), testAuthConfig())
	require.NoError(t, err)
	t.Cleanup(ac.Stop)

	router := gin.New()
	router.Use(sm.SessionLoadSave())
	ac.RegisterRoutes(router)
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": sm.GetUserID(c.Request)})
	})
	return &loginApp{authFixture: f, router: router}
}

func (a *loginApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func pageError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	msg, _ := data["Error"].(string)
	return msg
}

func TestAuthController_SetupFlow(t *testing.T) {
	a := newLoginApp(t)

	rr := get(a.router, "/login", nil)
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/setup", rr.Header().Get("Location"))

	rr = a.postForm("/setup", url.Values{
		"username": {"admin"}, "email": {"admin@biblioteca.test"},
		"password": {"estanteria42"}, "confirm_password": {"otra"},
	})
	assert.Equal(t, "Passwords do not match", pageError(t, rr))

	rr = a.postForm("/setup", url.Values{
		"username": {"admin"}, "email": {"admin@biblioteca.test"},
		"password": {"12345678"}, "confirm_password": {"12345678"},
	})
	assert.Equal(t, "Password cannot be entirely numeric", pageError(t, rr))

	rr = a.postForm("/setup", url.Values{
		"username": {"admin"}, "email": {"admin@biblioteca.test"},
		"password": {"estanteria42"}, "confirm_password": {"estanteria42"},
		"first_name": {"Ana"},
	})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	rr = get(a.router, "/whoami", sessionCookie(t, rr.Header()))
	assert.JSONEq(t, `{"user_id":1}`, rr.Body.String())

	admin, err := a.service.GetUserByID(1)
	require.NoError(t, err)
	assert.Equal(t, entities.UserRoleAdmin, admin.Role)
	assert.Equal(t, "Ana", admin.FirstName)

	rr = get(a.router, "/setup", nil)
	assert.Equal(t, "/login", rr.Header().Get("Location"), "setup closes once a user exists")
}

func TestAuthController_LoginAndLogout(t *testing.T) {
	a := newLoginApp(t)
	a.user(t, "juan_perez", "lectura2024", entities.UserRoleMember)

	rr := a.postForm("/login", url.Values{"username": {"juan_perez"}, "password": {"nope"}})
	assert.Equal(t, "Invalid username or password", pageError(t, rr))

	rr = a.postForm("/login", url.Values{
		"username": {"juan_perez"}, "password": {"lectura2024"}, "next": {"/prestamos"},
	})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/prestamos", rr.Header().Get("Location"))
	cookie := sessionCookie(t, rr.Header())

	rr = get(a.router, "/login", cookie)
	assert.Equal(t, "/", rr.Header().Get("Location"), "signed-in users skip the form")

	rr = get(a.router, "/logout", cookie)
	assert.Equal(t, "/login", rr.Header().Get("Location"))

	rr = get(a.router, "/whoami", cookie)
	assert.JSONEq(t, `{"user_id":0}`, rr.Body.String())
}

func TestAuthController_LoginThrottled(t *testing.T) {
	a := newLoginApp(t)
	a.user(t, "juan_perez", "lectura2024", entities.UserRoleMember)

	for i := 0; i < 3; i++ {
		a.postForm("/login", url.Values{"username": {"juan_perez"}, "password": {"nope"}})
	}

	rr := a.postForm("/login", url.Values{"username": {"juan_perez"}, "password": {"lectura2024"}})
	assert.Equal(t, "Too many login attempts. Please try again later.", pageError(t, rr))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestAuthController_AlternatePages(t *testing.T) {
	a := newLoginApp(t)

	rr := get(a.router, "/login/jwt/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"TokenURL":"/api/token/"`)

	rr = get(a.router, "/oauth/login/?next=//evil.example", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"Next":"/"`)
	assert.Contains(t, rr.Body.String(), `"GoogleEnabled":false`)
}

func TestAPITokenController(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "juan_perez", "lectura2024", entities.UserRoleMember)
	tc := NewAPITokenController(f.service)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if c.GetHeader("X-Test-User") != "" {
			c.Set(ContextKeyUserID, user.ID)
		}
	})
	router.POST("/api/tokens", tc.GenerateToken)
	router.DELETE("/api/tokens", tc.RevokeToken)

	req := httptest.NewRequest(http.MethodPost, "/api/tokens", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tokens", nil)
	req.Header.Set("X-Test-User", "1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	got, err := f.service.ValidateToken(body.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	req = httptest.NewRequest(http.MethodDelete, "/api/tokens", nil)
	req.Header.Set("X-Test-User", "1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = f.service.ValidateToken(body.Token)
	assert.Error(t, err)
}
