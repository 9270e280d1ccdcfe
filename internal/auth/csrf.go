package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTemplateField is the template function name for getting the CSRF token field.
const CSRFTemplateField = "csrfField"

// CSRFTokenHeader is the header name for CSRF token in AJAX requests.
const CSRFTokenHeader = "X-CSRF-Token"

// CSRFMiddleware creates a Gin middleware for CSRF protection of session
// authenticated forms. Requests with a valid bearer credential and the
// token endpoints, which authenticate clients on their own, are exempt.
func CSRFMiddleware(secret []byte, secure bool, m *Middleware) gin.HandlerFunc {
	csrfProtect := csrf.Protect(
		secret,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Path("/"),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		if isCSRFExempt(c.Request.URL.Path) || hasValidBearer(c, m) {
			c.Next()
			return
		}

		passed := false
		handler := csrfProtect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Set("csrf_token", csrf.Token(r))
			// session middleware runs after this, on top of the CSRF context
			c.Request = r
			c.Next()
		}))

		if !secure {
			// gorilla/csrf assumes TLS and checks the Referer otherwise
			c.Request = csrf.PlaintextHTTPRequest(c.Request)
		}
		handler.ServeHTTP(c.Writer, c.Request)
		if !passed {
			// the error handler already responded
			c.Abort()
		}
	}
}

func isCSRFExempt(path string) bool {
	return strings.HasPrefix(path, "/o/") || strings.HasPrefix(path, "/api/token/")
}

// csrfErrorHandler handles CSRF validation failures.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"CSRF token invalid or missing"}`))
		return
	}

	// For form submissions, redirect back to the original page with an error
	// This provides a better UX than showing a plain text error
	referer := r.Referer()
	if referer != "" {
		// Add error parameter to the referer URL
		separator := "?"
		if strings.Contains(referer, "?") {
			separator = "&"
		}
		http.Redirect(w, r, referer+separator+"error=Session+expired.+Please+try+again.", http.StatusSeeOther)
		return
	}

	// Fallback to HTML error page if no referer
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Session Expired</title></head>
<body style="font-family: system-ui; max-width: 400px; margin: 100px auto; text-align: center;">
<h1>Session Expired</h1>
<p>Your session has expired or the form submission was invalid.</p>
<p><a href="javascript:history.back()">Go back and try again</a></p>
</body>
</html>`))
}

// hasValidBearer reports whether the request carries a JWT or API token
// that authenticates. Without a middleware only header presence is checked.
func hasValidBearer(c *gin.Context, m *Middleware) bool {
	if bearerToken(c) == "" {
		return false
	}
	if m == nil {
		return true
	}
	_, _, _, ok := m.tryBearerAuth(c)
	return ok
}

// GetCSRFToken retrieves the CSRF token from the Gin context.
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get("csrf_token"); exists {
		if t, ok := token.(string); ok {
			return t
		}
	}
	return ""
}

// CSRFTokenField returns an HTML hidden input field with the CSRF token.
func CSRFTokenField(c *gin.Context) string {
	token := GetCSRFToken(c)
	if token == "" {
		return ""
	}
	return `<input type="hidden" name="gorilla.csrf.Token" value="` + token + `">`
}
