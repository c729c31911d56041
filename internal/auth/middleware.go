package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/identity"
)

// Context keys for user data
const (
	ContextKeyUser        = "auth_user"
	ContextKeyBearerToken = "auth_bearer_token"
	ContextKeyBearerUser  = "auth_bearer_user"
	ContextKeyRequestID   = "request_id"
)

// Middleware resolves the caller on every request and guards protected routes.
type Middleware struct {
	service      *Service
	publicPaths  map[string]bool
	publicPrefix []string
}

// NewMiddleware creates a new authentication middleware.
func NewMiddleware(service *Service) *Middleware {
	publicPaths := map[string]bool{
		"/health":                  true,
		"/ping":                    true,
		"/metrics":                 true,
		"/login":                   true,
		"/login/magic-link":        true,
		"/login/forgot-password":   true,
		"/signup":                  true,
		"/auth/callback":           true,
		"/logout":                  true,
		"/favicon.ico":             true,
		"/api/auth/signin":         true,
		"/api/auth/signup":         true,
		"/api/auth/magic-link":     true,
		"/api/auth/reset-password": true,
		"/api/auth/signout":        true,
		"/api/auth/csrf":           true,
	}

	return &Middleware{
		service:      service,
		publicPaths:  publicPaths,
		publicPrefix: []string{"/static/"},
	}
}

// Handler returns a Gin middleware handler that injects the mirrored user and
// refreshes near-expiry tokens. Anonymous requests to protected paths are sent
// to /login, or get a 401 Result on the API.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok && isAPIPath(c.Request.URL.Path) {
			m.handleBearer(c, token)
			return
		}

		ctx := c.Request.Context()
		if user := m.service.EnsureFresh(ctx, RequestInfoFrom(c)); user != nil {
			m.service.RecordActivity(ctx, user)
			c.Set(ContextKeyUser, user)
		}

		if m.isPublicPath(c.Request.URL.Path) || GetUser(c) != nil {
			c.Next()
			return
		}

		if isAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Fail(MsgNotSignedIn))
			return
		}

		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
	}
}

// handleBearer authenticates an API caller by asking the provider who owns
// the token. Public API paths pass the token through unchecked.
func (m *Middleware) handleBearer(c *gin.Context, token string) {
	c.Set(ContextKeyBearerToken, token)
	if m.isPublicPath(c.Request.URL.Path) {
		c.Next()
		return
	}

	user, err := m.service.UserForToken(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(StatusFor(err), Fail(MessageFor(err)))
		return
	}
	c.Set(ContextKeyBearerUser, user)
	c.Next()
}

// isPublicPath checks if a path should be accessible without authentication.
func (m *Middleware) isPublicPath(path string) bool {
	if m.publicPaths[path] {
		return true
	}
	for _, prefix := range m.publicPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// isAPIRequest determines if this is an API request vs web browser request.
func isAPIRequest(c *gin.Context) bool {
	if isAPIPath(c.Request.URL.Path) {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	return c.GetHeader("Authorization") != ""
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequestInfoFrom collects the caller details recorded with audit events.
func RequestInfoFrom(c *gin.Context) RequestInfo {
	return RequestInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: c.GetString(ContextKeyRequestID),
	}
}

// GetUser retrieves the mirrored user from the context. Returns nil when
// signed out.
func GetUser(c *gin.Context) *SessionUser {
	if v, exists := c.Get(ContextKeyUser); exists {
		if user, ok := v.(*SessionUser); ok {
			return user
		}
	}
	return nil
}

// GetBearerUser retrieves the provider user behind a validated bearer token.
func GetBearerUser(c *gin.Context) *identity.User {
	if v, exists := c.Get(ContextKeyBearerUser); exists {
		if user, ok := v.(*identity.User); ok {
			return user
		}
	}
	return nil
}

// GetBearerToken retrieves the API caller's access token from the context.
func GetBearerToken(c *gin.Context) string {
	return c.GetString(ContextKeyBearerToken)
}

// IsAuthenticated returns true if the request carries a mirrored session.
func IsAuthenticated(c *gin.Context) bool {
	return GetUser(c) != nil
}
