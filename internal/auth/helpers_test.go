package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	auditservice "github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/crypto"
	"github.com/mrlokans/gatekeeper/internal/database"
	auditrepo "github.com/mrlokans/gatekeeper/internal/database/audit"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/identity/identitytest"
)

const testSiteURL = "https://app.example.com"

type testEnv struct {
	provider *identitytest.Provider
	db       *database.Database
	sessions *SessionManager
	service  *Service
	audit    *auditservice.Service
	users    *users.Repository
}

func testAuthConfig() config.Auth {
	return config.Auth{
		SessionLifetime:   24 * time.Hour,
		SecureCookies:     false,
		MinPasswordLength: 6,
		RefreshMargin:     time.Minute,
	}
}

func setupDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(":memory:", database.Options{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupSessionManager(t *testing.T, cfg config.Auth) (*SessionManager, *database.Database) {
	t.Helper()
	db := setupDatabase(t)

	sqlDB, err := db.SQL()
	require.NoError(t, err)

	sealer, err := crypto.NewSealer([]byte("test-session-secret"))
	require.NoError(t, err)

	sm, err := NewSessionManager(sqlDB, cfg, sealer)
	require.NoError(t, err)
	return sm, db
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := identitytest.NewProvider()
	t.Cleanup(provider.Close)

	sm, db := setupSessionManager(t, testAuthConfig())
	userRepo := users.NewRepository(db.DB)
	auditSvc := auditservice.NewService(auditrepo.NewRepository(db.DB))
	// Async audit writes must land before the database closes.
	t.Cleanup(auditSvc.Wait)

	svc := NewService(provider.Client(), sm, config.Identity{
		URL:     provider.URL(),
		APIKey:  identitytest.APIKey,
		SiteURL: testSiteURL,
	}, testAuthConfig()).WithUserMirror(userRepo).WithAudit(auditSvc)

	return &testEnv{
		provider: provider,
		db:       db,
		sessions: sm,
		service:  svc,
		audit:    auditSvc,
		users:    userRepo,
	}
}

// sessionContext returns a context carrying a freshly loaded empty session.
func sessionContext(t *testing.T, sm *SessionManager) context.Context {
	t.Helper()
	ctx, err := sm.Load(context.Background(), "")
	require.NoError(t, err)
	return ctx
}

var testInfo = RequestInfo{IPAddress: "203.0.113.7", UserAgent: "test-agent", RequestID: "req-test"}

// browser replays cookies across requests against a router.
type browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, router http.Handler) *browser {
	return &browser{t: t, router: router, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, cookie := range b.cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	b.router.ServeHTTP(rr, req)

	for _, cookie := range rr.Result().Cookies() {
		if cookie.Value == "" || cookie.MaxAge < 0 {
			delete(b.cookies, cookie.Name)
			continue
		}
		b.cookies[cookie.Name] = cookie
	}
	return rr
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

// newTestRouter wires sessions, the auth middleware and a controller that
// renders JSON.
func newTestRouter(t *testing.T, env *testEnv) *gin.Engine {
	t.Helper()

	controller, err := NewAuthController(env.service, t.TempDir())
	require.NoError(t, err)
	return newControllerRouter(env, controller)
}

func newControllerRouter(env *testEnv, controller *AuthController) *gin.Engine {
	router := gin.New()
	router.Use(env.sessions.SessionLoadSave())
	router.Use(NewMiddleware(env.service).Handler())
	controller.RegisterRoutes(router)
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": GetUser(c).Email})
	})
	return router
}
