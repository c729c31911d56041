package auth

import (
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/crypto"
)

// Session data keys
const (
	SessionKeyUser         = "user"
	SessionKeyAccessToken  = "access_token"
	SessionKeyRefreshToken = "refresh_token"
	SessionKeyExpiresAt    = "expires_at"
	SessionKeyVerifier     = "pkce_verifier"
	SessionKeyToasts       = "toasts"
	SessionKeyLoginAt      = "login_at"
	SessionKeyLastSeen     = "last_seen"
)

// Toast levels
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
)

// SessionUser is the mirrored user record kept in the session.
type SessionUser struct {
	ID               string
	Email            string
	Role             string
	EmailConfirmedAt *time.Time
	LastSignInAt     *time.Time
	Metadata         string // JSON user_metadata
}

// Toast is a one-shot notification rendered on the next page.
type Toast struct {
	Level   string
	Message string
}

// Tokens are the provider credentials held for a session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func init() {
	// Register types that will be stored in sessions
	gob.Register(SessionUser{})
	gob.Register([]Toast{})
	gob.Register(time.Time{})
}

// SessionManager wraps scs.SessionManager with application-specific methods.
type SessionManager struct {
	*scs.SessionManager
	sealer *crypto.Sealer
}

// NewSessionManager creates a configured session manager.
// The sqlDB parameter should be the underlying *sql.DB from GORM, with the
// sessions table already created.
func NewSessionManager(sqlDB *sql.DB, cfg config.Auth, sealer *crypto.Sealer) (*SessionManager, error) {
	if sealer == nil {
		return nil, fmt.Errorf("session manager requires a token sealer")
	}

	sm := scs.New()

	// Configure session store (SQLite)
	sm.Store = sqlite3store.New(sqlDB)

	// Configure session lifetime
	sm.Lifetime = cfg.SessionLifetime
	sm.IdleTimeout = cfg.SessionLifetime / 2 // Half of lifetime for inactivity

	// Configure cookie security. Lax so the cookie survives the top-level
	// navigation from an emailed link back to /auth/callback.
	sm.Cookie.Name = "session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm, sealer: sealer}, nil
}

// StoreSession mirrors a provider session after a successful sign-in.
func (sm *SessionManager) StoreSession(ctx context.Context, user SessionUser, tokens Tokens) error {
	// Renew token to prevent session fixation
	if err := sm.RenewToken(ctx); err != nil {
		return err
	}

	now := time.Now()
	sm.Put(ctx, SessionKeyUser, user)
	sm.Put(ctx, SessionKeyLoginAt, now)
	sm.Put(ctx, SessionKeyLastSeen, now)
	return sm.StoreTokens(ctx, tokens)
}

// StoreTokens replaces the sealed provider tokens, e.g. after a refresh.
func (sm *SessionManager) StoreTokens(ctx context.Context, tokens Tokens) error {
	access, err := sm.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	refresh, err := sm.sealer.Seal(tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to seal refresh token: %w", err)
	}

	sm.Put(ctx, SessionKeyAccessToken, access)
	sm.Put(ctx, SessionKeyRefreshToken, refresh)
	sm.Put(ctx, SessionKeyExpiresAt, tokens.ExpiresAt.Unix())
	return nil
}

// UpdateUser replaces the mirrored user record without touching tokens.
func (sm *SessionManager) UpdateUser(ctx context.Context, user SessionUser) {
	sm.Put(ctx, SessionKeyUser, user)
}

// User returns the mirrored user, or nil when signed out.
func (sm *SessionManager) User(ctx context.Context) *SessionUser {
	user, ok := sm.Get(ctx, SessionKeyUser).(SessionUser)
	if !ok || user.ID == "" {
		return nil
	}
	return &user
}

// Tokens returns the unsealed provider tokens.
func (sm *SessionManager) Tokens(ctx context.Context) (Tokens, error) {
	access, err := sm.sealer.Open(sm.GetString(ctx, SessionKeyAccessToken))
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to open access token: %w", err)
	}
	refresh, err := sm.sealer.Open(sm.GetString(ctx, SessionKeyRefreshToken))
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to open refresh token: %w", err)
	}
	if access == "" {
		return Tokens{}, ErrNotSignedIn
	}

	tokens := Tokens{AccessToken: access, RefreshToken: refresh}
	if expiresAt := sm.GetInt64(ctx, SessionKeyExpiresAt); expiresAt > 0 {
		tokens.ExpiresAt = time.Unix(expiresAt, 0)
	}
	return tokens, nil
}

// LoginAt returns when the session was established.
func (sm *SessionManager) LoginAt(ctx context.Context) time.Time {
	return sm.GetTime(ctx, SessionKeyLoginAt)
}

// LastSeen returns when activity was last written to the users mirror.
func (sm *SessionManager) LastSeen(ctx context.Context) time.Time {
	return sm.GetTime(ctx, SessionKeyLastSeen)
}

// MarkSeen records that activity was written to the users mirror at t.
func (sm *SessionManager) MarkSeen(ctx context.Context, t time.Time) {
	sm.Put(ctx, SessionKeyLastSeen, t)
}

// Clear drops the mirror and rotates the session token. Toasts and the
// verifier survive so the next page can still report what happened.
func (sm *SessionManager) Clear(ctx context.Context) error {
	sm.Remove(ctx, SessionKeyUser)
	sm.Remove(ctx, SessionKeyAccessToken)
	sm.Remove(ctx, SessionKeyRefreshToken)
	sm.Remove(ctx, SessionKeyExpiresAt)
	sm.Remove(ctx, SessionKeyLoginAt)
	sm.Remove(ctx, SessionKeyLastSeen)
	return sm.RenewToken(ctx)
}

// PutVerifier remembers the PKCE verifier for the next callback.
func (sm *SessionManager) PutVerifier(ctx context.Context, verifier string) {
	sm.Put(ctx, SessionKeyVerifier, verifier)
}

// PopVerifier returns and forgets the PKCE verifier.
func (sm *SessionManager) PopVerifier(ctx context.Context) string {
	return sm.PopString(ctx, SessionKeyVerifier)
}

// AddToast queues a notification for the next rendered page.
func (sm *SessionManager) AddToast(ctx context.Context, level, message string) {
	toasts, _ := sm.Get(ctx, SessionKeyToasts).([]Toast)
	sm.Put(ctx, SessionKeyToasts, append(toasts, Toast{Level: level, Message: message}))
}

// PopToasts returns and clears queued notifications.
func (sm *SessionManager) PopToasts(ctx context.Context) []Toast {
	toasts, _ := sm.Pop(ctx, SessionKeyToasts).([]Toast)
	return toasts
}
