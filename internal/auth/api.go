package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/identity"
)

// APIUser is the user record returned by the JSON API.
type APIUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Role             string         `json:"role,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	Metadata         map[string]any `json:"user_metadata,omitempty"`
}

// APIResponse is a Result with the optional notice and user attached.
type APIResponse struct {
	Result
	Message   string   `json:"message,omitempty"`
	User      *APIUser `json:"user,omitempty"`
	CSRFToken string   `json:"csrf_token,omitempty"`
}

// APIController exposes the auth operations as JSON endpoints. Callers either
// ride the browser session (with a CSRF header) or send a provider access
// token as a bearer credential.
type APIController struct {
	service *Service
}

// NewAPIController creates the JSON auth controller.
func NewAPIController(service *Service) *APIController {
	return &APIController{service: service}
}

// RegisterRoutes registers the /api/auth endpoints.
func (ac *APIController) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/auth")
	api.POST("/signin", ac.SignIn)
	api.POST("/signup", ac.SignUp)
	api.POST("/magic-link", ac.MagicLink)
	api.POST("/reset-password", ac.ResetPassword)
	api.POST("/update-password", ac.UpdatePassword)
	api.POST("/signout", ac.SignOut)
	api.GET("/user", ac.User)
	api.GET("/csrf", ac.CSRF)
}

// SignIn handles POST /api/auth/signin.
func (ac *APIController) SignIn(c *gin.Context) {
	var form SignInForm
	if err := c.ShouldBindJSON(&form); err != nil {
		ac.badRequest(c, err)
		return
	}

	result := ac.service.SignIn(c.Request.Context(), RequestInfoFrom(c), form.Email, form.Password)
	ac.respond(c, result, ac.sessionUser(c, result))
}

// SignUp handles POST /api/auth/signup.
func (ac *APIController) SignUp(c *gin.Context) {
	var form SignUpForm
	if err := c.ShouldBindJSON(&form); err != nil {
		ac.badRequest(c, err)
		return
	}

	result := ac.service.SignUp(c.Request.Context(), RequestInfoFrom(c), form.Email, form.Password, form.ConfirmPassword)
	ac.respond(c, result, ac.sessionUser(c, result))
}

// MagicLink handles POST /api/auth/magic-link.
func (ac *APIController) MagicLink(c *gin.Context) {
	var form EmailForm
	if err := c.ShouldBindJSON(&form); err != nil {
		ac.badRequest(c, err)
		return
	}

	ac.respond(c, ac.service.SendMagicLink(c.Request.Context(), RequestInfoFrom(c), form.Email), nil)
}

// ResetPassword handles POST /api/auth/reset-password.
func (ac *APIController) ResetPassword(c *gin.Context) {
	var form EmailForm
	if err := c.ShouldBindJSON(&form); err != nil {
		ac.badRequest(c, err)
		return
	}

	ac.respond(c, ac.service.ResetPassword(c.Request.Context(), RequestInfoFrom(c), form.Email), nil)
}

// UpdatePassword handles POST /api/auth/update-password.
func (ac *APIController) UpdatePassword(c *gin.Context) {
	var form UpdatePasswordForm
	if err := c.ShouldBindJSON(&form); err != nil {
		ac.badRequest(c, err)
		return
	}

	ctx, info := c.Request.Context(), RequestInfoFrom(c)
	var result Result
	if token := GetBearerToken(c); token != "" {
		result = ac.service.UpdatePasswordWithToken(ctx, info, token, form.Password, form.ConfirmPassword)
	} else {
		result = ac.service.UpdatePassword(ctx, info, form.Password, form.ConfirmPassword)
	}
	if result.Success {
		result.Notice = NoticePasswordUpdated
	}
	ac.respond(c, result, nil)
}

// SignOut handles POST /api/auth/signout.
func (ac *APIController) SignOut(c *gin.Context) {
	ctx, info := c.Request.Context(), RequestInfoFrom(c)
	if token := GetBearerToken(c); token != "" {
		ac.respond(c, ac.service.SignOutToken(ctx, info, token), nil)
		return
	}
	ac.respond(c, ac.service.SignOut(ctx, info), nil)
}

// User handles GET /api/auth/user. The middleware has already rejected
// anonymous callers.
func (ac *APIController) User(c *gin.Context) {
	if user := GetBearerUser(c); user != nil {
		ac.respond(c, Ok(), apiUserFromIdentity(user))
		return
	}
	if user := GetUser(c); user != nil {
		ac.respond(c, Ok(), apiUserFromSession(user))
		return
	}
	ac.respond(c, failWith(ErrNotSignedIn), nil)
}

// CSRF handles GET /api/auth/csrf. Session-cookie callers send the returned
// token back in the X-CSRF-Token header on every POST. The token is empty
// when CSRF protection is off.
func (ac *APIController) CSRF(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Result: Ok(), CSRFToken: GetCSRFToken(c)})
}

func (ac *APIController) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, APIResponse{Result: Fail(BindingMessage(err))})
}

func (ac *APIController) respond(c *gin.Context, result Result, user *APIUser) {
	c.JSON(result.HTTPStatus(), APIResponse{
		Result:  result,
		Message: result.Notice,
		User:    user,
	})
}

// sessionUser returns the user just mirrored into the session, if any.
func (ac *APIController) sessionUser(c *gin.Context, result Result) *APIUser {
	if !result.Success {
		return nil
	}
	if user := ac.service.CurrentUser(c.Request.Context()); user != nil {
		return apiUserFromSession(user)
	}
	return nil
}

func apiUserFromSession(user *SessionUser) *APIUser {
	out := &APIUser{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		EmailConfirmedAt: user.EmailConfirmedAt,
		LastSignInAt:     user.LastSignInAt,
	}
	if user.Metadata != "" {
		_ = json.Unmarshal([]byte(user.Metadata), &out.Metadata)
	}
	return out
}

func apiUserFromIdentity(user *identity.User) *APIUser {
	return &APIUser{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		EmailConfirmedAt: user.EmailConfirmedAt,
		LastSignInAt:     user.LastSignInAt,
		Metadata:         user.UserMetadata,
	}
}
