package auth

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
)

// CSRFTemplateField is the template function name for getting the CSRF token field.
const CSRFTemplateField = "csrfField"

// CSRFTokenHeader is the header name for CSRF token in AJAX requests.
const CSRFTokenHeader = "X-CSRF-Token"

const contextKeyCSRFToken = "csrf_token"

// MsgCSRFInvalid is returned to JSON callers whose request failed the CSRF check.
const MsgCSRFInvalid = "Missing or invalid CSRF token. Fetch one from GET /api/auth/csrf and send it in the " + CSRFTokenHeader + " header."

// CSRFMiddleware creates a Gin middleware for CSRF protection.
// It skips CSRF checks for:
// - API routes carrying a Bearer token (browsers never attach one cross-site)
// - Safe HTTP methods (GET, HEAD, OPTIONS, TRACE)
//
// API responses carry a fresh masked token in the X-CSRF-Token header so JSON
// clients can submit without scraping a form.
func CSRFMiddleware(key []byte, secure bool) gin.HandlerFunc {
	csrfProtect := csrf.Protect(
		key,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		if isAPIWithBearer(c) {
			c.Next()
			return
		}

		r := c.Request
		if !isTLSRequest(r) {
			// Plain HTTP (local dev, tests) skips the HTTPS-only Referer check.
			r = csrf.PlaintextHTTPRequest(r)
		}

		passed := false
		handler := csrfProtect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := csrf.Token(r)
			c.Set(contextKeyCSRFToken, token)
			if isAPIPath(r.URL.Path) {
				c.Header(CSRFTokenHeader, token)
			}
			c.Request = r
			c.Next()
		}))

		handler.ServeHTTP(c.Writer, r)
		if !passed {
			// The error handler has already responded.
			c.Abort()
		}
	}
}

func isTLSRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// csrfErrorHandler handles CSRF validation failures.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		body, _ := json.Marshal(Fail(MsgCSRFInvalid))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write(body)
		return
	}

	// Form submissions go back to the page they came from with an error toast.
	referer := r.Referer()
	if referer != "" && isLocalPath(refererPath(referer)) {
		separator := "?"
		if strings.Contains(referer, "?") {
			separator = "&"
		}
		http.Redirect(w, r, refererPath(referer)+separator+"error=Session+expired.+Please+try+again.", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Session Expired</title></head>
<body style="font-family: system-ui; max-width: 400px; margin: 100px auto; text-align: center;">
<h1>Session Expired</h1>
<p>Your session has expired or the form submission was invalid.</p>
<p><a href="/login">Back to sign in</a></p>
</body>
</html>`))
}

// refererPath strips scheme and host so only same-site paths are reused.
func refererPath(referer string) string {
	idx := strings.Index(referer, "://")
	if idx < 0 {
		return referer
	}
	rest := referer[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "/"
	}
	return rest[slash:]
}

// isAPIWithBearer checks if this is an API request with a Bearer token.
func isAPIWithBearer(c *gin.Context) bool {
	if !isAPIPath(c.Request.URL.Path) {
		return false
	}
	_, ok := bearerToken(c)
	return ok
}

// GetCSRFToken retrieves the CSRF token from the Gin context.
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(contextKeyCSRFToken)
}

// CSRFTokenField returns an HTML hidden input field with the CSRF token.
func CSRFTokenField(c *gin.Context) template.HTML {
	token := GetCSRFToken(c)
	if token == "" {
		return ""
	}
	return template.HTML(`<input type="hidden" name="gorilla.csrf.Token" value="` + template.HTMLEscapeString(token) + `">`)
}
