package http

import (
	"html/template"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/auth"
)

// HomeController renders the signed-in landing page.
type HomeController struct {
	sessions  *auth.SessionManager
	templates *template.Template
}

// NewHomeController loads home.html together with the shared toast partial.
// Without the template the page renders its data as JSON.
func NewHomeController(sessions *auth.SessionManager, templatesPath string) *HomeController {
	tmpl, err := template.ParseFiles(
		filepath.Join(templatesPath, "home.html"),
		filepath.Join(templatesPath, "auth", "toasts.html"),
	)
	if err != nil {
		log.Printf("[HTTP] No home template in %s, rendering JSON: %v", templatesPath, err)
		tmpl = nil
	}
	return &HomeController{sessions: sessions, templates: tmpl}
}

// HomePage handles GET /. The auth middleware guarantees a signed-in user.
func (hc *HomeController) HomePage(c *gin.Context) {
	data := gin.H{
		"Title":     "Home",
		"User":      auth.GetUser(c),
		"CSRFField": auth.CSRFTokenField(c),
	}
	if hc.sessions != nil {
		ctx := c.Request.Context()
		data["Toasts"] = hc.sessions.PopToasts(ctx)
		if at := hc.sessions.LoginAt(ctx); !at.IsZero() {
			data["SignedInAt"] = at
		}
	}

	if hc.templates == nil {
		c.JSON(http.StatusOK, data)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := hc.templates.ExecuteTemplate(c.Writer, "home.html", data); err != nil {
		log.Printf("[HTTP] Template home.html failed: %v", err)
		c.String(http.StatusInternalServerError, "Template error")
	}
}
