package auth

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// Login page tabs
const (
	TabPassword  = "password"
	TabMagicLink = "magic"
	TabForgot    = "forgot"
)

// isLocalPath validates that a redirect path is local to prevent open redirect attacks.
// Returns true if the path is safe for redirect (local path only).
func isLocalPath(path string) bool {
	if !isSafeRelativePath(path) {
		return false
	}

	// Browsers strip tab and newline from URLs, so "/\t/evil.com" turns
	// protocol-relative. The decoded form is checked the same way.
	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return false
	}
	if decoded, err := url.PathUnescape(u.EscapedPath()); err != nil || !isSafeRelativePath(decoded) {
		return false
	}

	return true
}

func isSafeRelativePath(path string) bool {
	if path == "" {
		return false
	}

	// Must start with /
	if !strings.HasPrefix(path, "/") {
		return false
	}

	// Reject protocol-relative URLs (//evil.com)
	if strings.HasPrefix(path, "//") {
		return false
	}

	// Reject URLs with schemes
	if strings.Contains(path, "://") {
		return false
	}

	// Reject paths with backslashes (potential bypass attempts)
	if strings.Contains(path, "\\") {
		return false
	}

	for i := 0; i < len(path); i++ {
		if path[i] < 0x20 || path[i] == 0x7f {
			return false
		}
	}

	return true
}

// sanitizeRedirectPath returns a safe redirect path, defaulting to "/" if invalid.
func sanitizeRedirectPath(path string) string {
	if isLocalPath(path) {
		return path
	}
	return "/"
}

// AuthController serves the login, sign-up and password pages.
type AuthController struct {
	service   *Service
	templates *template.Template
}

// NewAuthController creates a new authentication controller.
// Without templates every page falls back to a JSON rendering of its data.
func NewAuthController(service *Service, templatesPath string) (*AuthController, error) {
	pattern := filepath.Join(templatesPath, "auth", "*.html")
	tmpl, err := template.ParseGlob(pattern)
	if err != nil {
		log.Printf("[AUTH] No auth templates at %s, rendering JSON: %v", pattern, err)
		tmpl = nil
	}

	return &AuthController{
		service:   service,
		templates: tmpl,
	}, nil
}

// RegisterRoutes registers authentication routes on the router.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	router.GET("/login", ac.LoginPage)
	router.POST("/login", ac.Login)
	router.POST("/login/magic-link", ac.MagicLink)
	router.POST("/login/forgot-password", ac.ForgotPassword)
	router.GET("/signup", ac.SignUpPage)
	router.POST("/signup", ac.SignUp)
	router.GET("/auth/callback", ac.Callback)
	router.GET("/auth/update-password", ac.UpdatePasswordPage)
	router.POST("/auth/update-password", ac.UpdatePassword)
	router.POST("/logout", ac.Logout)
}

// LoginPage renders the login form with its password, magic link and
// forgot-password tabs.
func (ac *AuthController) LoginPage(c *gin.Context) {
	next := sanitizeRedirectPath(c.Query("next"))
	if IsAuthenticated(c) {
		c.Redirect(http.StatusFound, next)
		return
	}

	ac.renderLogin(c, http.StatusOK, loginTab(c.Query("tab")), gin.H{
		"Next":  next,
		"Error": c.Query("error"),
	})
}

// Login handles the password form submission.
func (ac *AuthController) Login(c *gin.Context) {
	var form SignInForm
	if err := c.ShouldBind(&form); err != nil {
		ac.renderLogin(c, http.StatusUnprocessableEntity, TabPassword, gin.H{
			"Next":  sanitizeRedirectPath(c.PostForm("next")),
			"Email": c.PostForm("email"),
			"Error": BindingMessage(err),
		})
		return
	}
	next := sanitizeRedirectPath(form.Next)

	result := ac.service.SignIn(c.Request.Context(), RequestInfoFrom(c), form.Email, form.Password)
	if !result.Success {
		ac.renderLogin(c, http.StatusUnprocessableEntity, TabPassword, gin.H{
			"Next":  next,
			"Email": form.Email,
			"Error": result.Error,
		})
		return
	}

	ac.toast(c, ToastSuccess, NoticeSignedIn)
	c.Redirect(http.StatusSeeOther, next)
}

// MagicLink handles the magic link tab.
func (ac *AuthController) MagicLink(c *gin.Context) {
	ac.emailFlow(c, TabMagicLink, ac.service.SendMagicLink)
}

// ForgotPassword handles the forgot-password tab.
func (ac *AuthController) ForgotPassword(c *gin.Context) {
	ac.emailFlow(c, TabForgot, ac.service.ResetPassword)
}

type emailOperation func(ctx context.Context, info RequestInfo, email string) Result

func (ac *AuthController) emailFlow(c *gin.Context, tab string, send emailOperation) {
	var form EmailForm
	if err := c.ShouldBind(&form); err != nil {
		ac.renderLogin(c, http.StatusUnprocessableEntity, tab, gin.H{
			"Email": c.PostForm("email"),
			"Error": BindingMessage(err),
		})
		return
	}

	result := send(c.Request.Context(), RequestInfoFrom(c), form.Email)
	if !result.Success {
		ac.renderLogin(c, http.StatusUnprocessableEntity, tab, gin.H{
			"Email": form.Email,
			"Error": result.Error,
		})
		return
	}

	ac.toast(c, ToastInfo, result.Notice)
	c.Redirect(http.StatusSeeOther, "/login?tab="+tab)
}

// SignUpPage renders the registration form.
func (ac *AuthController) SignUpPage(c *gin.Context) {
	if IsAuthenticated(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	ac.renderTemplate(c, http.StatusOK, "signup.html", gin.H{
		"Title": "Create account",
		"Error": c.Query("error"),
	})
}

// SignUp handles the registration form submission.
func (ac *AuthController) SignUp(c *gin.Context) {
	var form SignUpForm
	if err := c.ShouldBind(&form); err != nil {
		ac.renderTemplate(c, http.StatusUnprocessableEntity, "signup.html", gin.H{
			"Title": "Create account",
			"Email": c.PostForm("email"),
			"Error": BindingMessage(err),
		})
		return
	}

	result := ac.service.SignUp(c.Request.Context(), RequestInfoFrom(c), form.Email, form.Password, form.ConfirmPassword)
	if !result.Success {
		ac.renderTemplate(c, http.StatusUnprocessableEntity, "signup.html", gin.H{
			"Title": "Create account",
			"Email": form.Email,
			"Error": result.Error,
		})
		return
	}

	if result.Notice == NoticeCheckEmail {
		ac.toast(c, ToastInfo, result.Notice)
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}

	ac.toast(c, ToastSuccess, NoticeSignedIn)
	c.Redirect(http.StatusSeeOther, "/")
}

// Callback completes an emailed link. Recovery links continue to the
// update-password page; everything else signs the user in.
func (ac *AuthController) Callback(c *gin.Context) {
	params := CallbackParams{
		Code:             c.Query("code"),
		TokenHash:        c.Query("token_hash"),
		Type:             c.Query("type"),
		Error:            c.Query("error"),
		ErrorCode:        c.Query("error_code"),
		ErrorDescription: c.Query("error_description"),
	}
	reset := c.Query("reset") == "true" || params.Type == "recovery"

	result := ac.service.CompleteCallback(c.Request.Context(), RequestInfoFrom(c), params)
	if !result.Success {
		ac.toast(c, ToastError, result.Error)
		target := "/login"
		if reset {
			target += "?tab=" + TabForgot
		}
		c.Redirect(http.StatusFound, target)
		return
	}

	if reset {
		ac.toast(c, ToastInfo, NoticeChooseNewPassword)
		c.Redirect(http.StatusFound, "/auth/update-password")
		return
	}

	ac.toast(c, ToastSuccess, NoticeSignedIn)
	c.Redirect(http.StatusFound, sanitizeRedirectPath(c.Query("next")))
}

// UpdatePasswordPage renders the new-password form.
func (ac *AuthController) UpdatePasswordPage(c *gin.Context) {
	ac.renderTemplate(c, http.StatusOK, "update_password.html", gin.H{
		"Title": "Choose a new password",
	})
}

// UpdatePassword handles the new-password form submission.
func (ac *AuthController) UpdatePassword(c *gin.Context) {
	var form UpdatePasswordForm
	if err := c.ShouldBind(&form); err != nil {
		ac.renderTemplate(c, http.StatusUnprocessableEntity, "update_password.html", gin.H{
			"Title": "Choose a new password",
			"Error": BindingMessage(err),
		})
		return
	}

	result := ac.service.UpdatePassword(c.Request.Context(), RequestInfoFrom(c), form.Password, form.ConfirmPassword)
	if !result.Success {
		ac.renderTemplate(c, http.StatusUnprocessableEntity, "update_password.html", gin.H{
			"Title": "Choose a new password",
			"Error": result.Error,
		})
		return
	}

	ac.toast(c, ToastSuccess, NoticePasswordUpdated)
	c.Redirect(http.StatusSeeOther, "/")
}

// Logout clears the session and redirects to login.
func (ac *AuthController) Logout(c *gin.Context) {
	result := ac.service.SignOut(c.Request.Context(), RequestInfoFrom(c))
	if result.Success {
		ac.toast(c, ToastSuccess, result.Notice)
	} else {
		ac.toast(c, ToastError, result.Error)
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

func (ac *AuthController) toast(c *gin.Context, level, message string) {
	if message == "" {
		return
	}
	ac.service.Sessions().AddToast(c.Request.Context(), level, message)
}

func loginTab(tab string) string {
	switch tab {
	case TabMagicLink, TabForgot:
		return tab
	}
	return TabPassword
}

func (ac *AuthController) renderLogin(c *gin.Context, status int, tab string, data gin.H) {
	data["Title"] = "Sign in"
	data["Tab"] = tab
	if _, ok := data["Next"]; !ok {
		data["Next"] = "/"
	}
	ac.renderTemplate(c, status, "login.html", data)
}

// renderTemplate renders an auth template or falls back to JSON.
func (ac *AuthController) renderTemplate(c *gin.Context, status int, name string, data gin.H) {
	data["CSRFToken"] = GetCSRFToken(c)
	data["CSRFField"] = CSRFTokenField(c)
	data["MinPasswordLength"] = ac.service.MinPasswordLength()
	data["Toasts"] = ac.service.Sessions().PopToasts(c.Request.Context())

	if ac.templates == nil {
		c.JSON(status, data)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := ac.templates.ExecuteTemplate(c.Writer, name, data); err != nil {
		log.Printf("[AUTH] Template %s failed: %v", name, err)
		c.String(http.StatusInternalServerError, "Template error")
	}
}
