package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrlokans/gatekeeper/internal/audit"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/identity"
	"github.com/mrlokans/gatekeeper/internal/metrics"
)

// IdentityClient is the subset of the provider client the service calls.
type IdentityClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password, redirectTo string, pkce *identity.PKCE) (*identity.SignUpResponse, error)
	SendMagicLink(ctx context.Context, email, redirectTo string, pkce *identity.PKCE) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string, pkce *identity.PKCE) error
	VerifyOTP(ctx context.Context, tokenHash string, otpType identity.OTPType) (*identity.Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*identity.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error)
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
	UpdatePassword(ctx context.Context, accessToken, password string) (*identity.User, error)
	SignOut(ctx context.Context, accessToken string) error
}

// UserMirror persists mirrored user records.
type UserMirror interface {
	Upsert(user *entities.User) (*entities.User, error)
	Touch(externalID string, t time.Time) error
}

// activityInterval bounds how often a session writes last-seen times.
const activityInterval = 5 * time.Minute

// AuditLogger records authentication attempts.
type AuditLogger interface {
	LogAuth(entry audit.AuthEntry)
}

// RequestInfo identifies the caller for audit records.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// CallbackParams are the query parameters the provider appends to /auth/callback.
type CallbackParams struct {
	Code             string
	TokenHash        string
	Type             string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// Service forwards auth operations to the identity provider and keeps the
// session mirror in step with the outcome. No method returns an error; all
// failures become a Result.
type Service struct {
	client   IdentityClient
	sessions *SessionManager
	users    UserMirror
	audit    AuditLogger
	identity config.Identity
	config   config.Auth
	now      func() time.Time
}

// NewService creates a new authentication service.
func NewService(client IdentityClient, sessions *SessionManager, identityCfg config.Identity, cfg config.Auth) *Service {
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = config.DefaultMinPasswordLength
	}
	return &Service{
		client:   client,
		sessions: sessions,
		identity: identityCfg,
		config:   cfg,
		now:      time.Now,
	}
}

// WithUserMirror enables persisting mirrored users.
func (s *Service) WithUserMirror(users UserMirror) *Service {
	s.users = users
	return s
}

// WithAudit enables audit records for every provider call.
func (s *Service) WithAudit(logger AuditLogger) *Service {
	s.audit = logger
	return s
}

// Sessions exposes the session manager for toasts and the gin adapter.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// MinPasswordLength is the enforced minimum, for form hints.
func (s *Service) MinPasswordLength() int {
	return s.config.MinPasswordLength
}

// SignIn verifies email and password at the provider and mirrors the session.
func (s *Service) SignIn(ctx context.Context, info RequestInfo, email, password string) Result {
	email = normalizeEmail(email)
	if err := s.validateCredentials(email, password); err != nil {
		return s.reject(entities.AuditActionSignIn, err)
	}

	session, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return s.finish(ctx, entities.AuditActionSignIn, info, email, "", err)
	}

	user, err := s.establish(ctx, session)
	return s.finish(ctx, entities.AuditActionSignIn, info, email, user.ID, err)
}

// SignUp registers a new account. When the provider requires email
// confirmation the result carries NoticeCheckEmail and nothing is mirrored.
func (s *Service) SignUp(ctx context.Context, info RequestInfo, email, password, confirm string) Result {
	email = normalizeEmail(email)
	if err := s.validateCredentials(email, password); err != nil {
		return s.reject(entities.AuditActionSignUp, err)
	}
	if err := validateConfirmation(password, confirm); err != nil {
		return s.reject(entities.AuditActionSignUp, err)
	}

	pkce, err := s.startFlow(ctx)
	if err != nil {
		return s.finish(ctx, entities.AuditActionSignUp, info, email, "", err)
	}

	resp, err := s.client.SignUp(ctx, email, password, s.identity.CallbackURL(), pkce)
	if err != nil {
		return s.finish(ctx, entities.AuditActionSignUp, info, email, "", err)
	}

	if resp.NeedsConfirmation() {
		var externalID string
		if resp.User != nil {
			externalID = resp.User.ID
		}
		result := s.finish(ctx, entities.AuditActionSignUp, info, email, externalID, nil)
		result.Notice = NoticeCheckEmail
		return result
	}

	user, err := s.establish(ctx, resp.Session)
	return s.finish(ctx, entities.AuditActionSignUp, info, email, user.ID, err)
}

// SendMagicLink asks the provider to email a one-time sign-in link.
func (s *Service) SendMagicLink(ctx context.Context, info RequestInfo, email string) Result {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return s.reject(entities.AuditActionMagicLink, err)
	}

	pkce, err := s.startFlow(ctx)
	if err == nil {
		err = s.client.SendMagicLink(ctx, email, s.identity.CallbackURL(), pkce)
	}

	result := s.finish(ctx, entities.AuditActionMagicLink, info, email, "", err)
	if result.Success {
		result.Notice = NoticeMagicLinkSent
	}
	return result
}

// ResetPassword asks the provider to email a recovery link that lands on
// /auth/callback?reset=true.
func (s *Service) ResetPassword(ctx context.Context, info RequestInfo, email string) Result {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return s.reject(entities.AuditActionPasswordReset, err)
	}

	pkce, err := s.startFlow(ctx)
	if err == nil {
		err = s.client.ResetPasswordForEmail(ctx, email, s.identity.ResetCallbackURL(), pkce)
	}

	result := s.finish(ctx, entities.AuditActionPasswordReset, info, email, "", err)
	if result.Success {
		result.Notice = NoticeResetSent
	}
	return result
}

// CompleteCallback finishes an emailed-link flow. It accepts a PKCE code, a
// token hash with its type, or the error the provider redirected with.
func (s *Service) CompleteCallback(ctx context.Context, info RequestInfo, params CallbackParams) Result {
	var (
		session *identity.Session
		err     error
	)

	switch {
	case params.Error != "" || params.ErrorCode != "" || params.ErrorDescription != "":
		code := params.ErrorCode
		if code == "" {
			code = params.Error
		}
		err = &identity.APIError{Status: http.StatusBadRequest, Code: code, Message: params.ErrorDescription}
	case params.Code != "":
		verifier := s.sessions.PopVerifier(ctx)
		if verifier == "" {
			err = ErrMissingVerifier
			break
		}
		session, err = s.client.ExchangeCode(ctx, params.Code, verifier)
	case params.TokenHash != "":
		otpType := identity.OTPType(params.Type)
		if !otpType.Valid() {
			err = ErrIncompleteCallback
			break
		}
		session, err = s.client.VerifyOTP(ctx, params.TokenHash, otpType)
	default:
		err = ErrIncompleteCallback
	}

	if err != nil {
		return s.finish(ctx, entities.AuditActionCallback, info, "", "", err)
	}

	user, err := s.establish(ctx, session)
	return s.finish(ctx, entities.AuditActionCallback, info, user.Email, user.ID, err)
}

// UpdatePassword sets a new password for the signed-in user.
func (s *Service) UpdatePassword(ctx context.Context, info RequestInfo, password, confirm string) Result {
	if err := validatePassword(password, s.config.MinPasswordLength); err != nil {
		return s.reject(entities.AuditActionPasswordUpdate, err)
	}
	if err := validateConfirmation(password, confirm); err != nil {
		return s.reject(entities.AuditActionPasswordUpdate, err)
	}

	current := s.sessions.User(ctx)
	tokens, err := s.sessions.Tokens(ctx)
	if current == nil || err != nil {
		return s.finish(ctx, entities.AuditActionPasswordUpdate, info, "", "", ErrNotSignedIn)
	}

	user, err := s.client.UpdatePassword(ctx, tokens.AccessToken, password)
	if err == nil {
		mirrored := newSessionUser(user)
		s.sessions.UpdateUser(ctx, mirrored)
		s.mirror(user)
	}

	return s.finish(ctx, entities.AuditActionPasswordUpdate, info, current.Email, current.ID, err)
}

// UpdatePasswordWithToken sets a new password for the owner of an access token
// supplied by an API caller. Nothing is mirrored.
func (s *Service) UpdatePasswordWithToken(ctx context.Context, info RequestInfo, accessToken, password, confirm string) Result {
	if err := validatePassword(password, s.config.MinPasswordLength); err != nil {
		return s.reject(entities.AuditActionPasswordUpdate, err)
	}
	if err := validateConfirmation(password, confirm); err != nil {
		return s.reject(entities.AuditActionPasswordUpdate, err)
	}

	user, err := s.client.UpdatePassword(ctx, accessToken, password)
	var email, externalID string
	if user != nil {
		email, externalID = user.Email, user.ID
	}
	return s.finish(ctx, entities.AuditActionPasswordUpdate, info, email, externalID, err)
}

// SignOut revokes the session at the provider when possible and always clears
// the local mirror.
func (s *Service) SignOut(ctx context.Context, info RequestInfo) Result {
	var email, externalID string
	if current := s.sessions.User(ctx); current != nil {
		email, externalID = current.Email, current.ID
	}

	var providerErr error
	if tokens, err := s.sessions.Tokens(ctx); err == nil {
		providerErr = s.client.SignOut(ctx, tokens.AccessToken)
	}
	if providerErr != nil {
		log.Printf("[AUTH] Provider sign-out failed, clearing local session anyway: %v", providerErr)
	}
	s.recordAudit(entities.AuditActionSignOut, info, email, externalID, providerErr)

	if err := s.sessions.Clear(ctx); err != nil {
		log.Printf("[AUTH] Failed to clear session: %v", err)
		metrics.RecordAuthOperation(entities.AuditActionSignOut, metrics.OutcomeFailure)
		return failWith(err)
	}

	metrics.RecordAuthOperation(entities.AuditActionSignOut, metrics.OutcomeSuccess)
	return OkWithNotice(NoticeSignedOut)
}

// SignOutToken revokes an access token supplied by an API caller.
func (s *Service) SignOutToken(ctx context.Context, info RequestInfo, accessToken string) Result {
	err := s.client.SignOut(ctx, accessToken)
	return s.finish(ctx, entities.AuditActionSignOut, info, "", "", err)
}

// CurrentUser returns the mirrored user, or nil when signed out.
func (s *Service) CurrentUser(ctx context.Context) *SessionUser {
	return s.sessions.User(ctx)
}

// UserForToken asks the provider who owns an access token.
func (s *Service) UserForToken(ctx context.Context, accessToken string) (*identity.User, error) {
	return s.client.GetUser(ctx, accessToken)
}

// EnsureFresh returns the mirrored user, refreshing the provider tokens first
// when the access token expires within the refresh margin. A rejected refresh
// clears the mirror. When the provider is unreachable the mirror is kept
// until the access token has actually expired.
func (s *Service) EnsureFresh(ctx context.Context, info RequestInfo) *SessionUser {
	user := s.sessions.User(ctx)
	if user == nil {
		return nil
	}

	tokens, err := s.sessions.Tokens(ctx)
	if err != nil {
		log.Printf("[AUTH] Dropping session with unreadable tokens: %v", err)
		s.clearQuietly(ctx)
		return nil
	}

	now := s.now()
	if tokens.ExpiresAt.IsZero() || now.Add(s.config.RefreshMargin).Before(tokens.ExpiresAt) {
		return user
	}

	if tokens.RefreshToken == "" {
		s.expire(ctx, info, user, ErrNotSignedIn)
		return nil
	}

	session, err := s.client.RefreshSession(ctx, tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrNetwork) && now.Before(tokens.ExpiresAt) {
			log.Printf("[AUTH] Token refresh deferred, provider unreachable: %v", err)
			return user
		}
		s.expire(ctx, info, user, err)
		return nil
	}

	if err := s.sessions.StoreTokens(ctx, tokensFor(session, now)); err != nil {
		s.expire(ctx, info, user, err)
		return nil
	}
	if session.User != nil {
		refreshed := newSessionUser(session.User)
		s.sessions.UpdateUser(ctx, refreshed)
		s.mirror(session.User)
		user = &refreshed
	}

	s.recordAudit(entities.AuditActionSessionRefresh, info, user.Email, user.ID, nil)
	metrics.RecordAuthOperation(entities.AuditActionSessionRefresh, metrics.OutcomeSuccess)
	return user
}

// RecordActivity moves the mirrored user's last-seen time forward, at most
// once per activityInterval for each session.
func (s *Service) RecordActivity(ctx context.Context, user *SessionUser) {
	if s.users == nil || user == nil {
		return
	}
	now := s.now()
	if now.Sub(s.sessions.LastSeen(ctx)) < activityInterval {
		return
	}
	s.sessions.MarkSeen(ctx, now)
	if err := s.users.Touch(user.ID, now); err != nil {
		log.Printf("[AUTH] Failed to record activity for %s: %v", user.ID, err)
	}
}

func (s *Service) expire(ctx context.Context, info RequestInfo, user *SessionUser, err error) {
	log.Printf("[AUTH] Session refresh failed for %s: %v", user.Email, err)
	s.recordAudit(entities.AuditActionSessionRefresh, info, user.Email, user.ID, err)
	metrics.RecordAuthOperation(entities.AuditActionSessionRefresh, metrics.OutcomeFailure)
	s.clearQuietly(ctx)
	s.sessions.AddToast(ctx, ToastInfo, MsgSessionExpired)
}

func (s *Service) clearQuietly(ctx context.Context) {
	if err := s.sessions.Clear(ctx); err != nil {
		log.Printf("[AUTH] Failed to clear session: %v", err)
	}
}

func (s *Service) validateCredentials(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	return validatePassword(password, s.config.MinPasswordLength)
}

// startFlow generates a PKCE pair and keeps the verifier for the callback.
func (s *Service) startFlow(ctx context.Context) (*identity.PKCE, error) {
	pkce, err := identity.NewPKCE()
	if err != nil {
		return nil, err
	}
	s.sessions.PutVerifier(ctx, pkce.Verifier)
	return pkce, nil
}

// establish mirrors a fresh provider session into the session store and the
// users table.
func (s *Service) establish(ctx context.Context, session *identity.Session) (SessionUser, error) {
	if session == nil || session.AccessToken == "" {
		return SessionUser{}, errors.New("provider returned no session")
	}

	user := session.User
	if user == nil {
		fetched, err := s.client.GetUser(ctx, session.AccessToken)
		if err != nil {
			return SessionUser{}, err
		}
		user = fetched
	}

	mirrored := newSessionUser(user)
	if err := s.sessions.StoreSession(ctx, mirrored, tokensFor(session, s.now())); err != nil {
		return mirrored, err
	}
	s.mirror(user)
	return mirrored, nil
}

func (s *Service) mirror(user *identity.User) {
	if s.users == nil || user == nil {
		return
	}
	if _, err := s.users.Upsert(newMirrorRecord(user, s.now())); err != nil {
		log.Printf("[AUTH] Failed to mirror user %s: %v", user.ID, err)
	}
}

// reject reports a local validation failure. The provider is never called.
func (s *Service) reject(operation string, err error) Result {
	metrics.RecordAuthOperation(operation, metrics.OutcomeInvalid)
	return failWith(err)
}

// finish records the outcome of a provider call and converts it to a Result.
func (s *Service) finish(ctx context.Context, operation string, info RequestInfo, email, externalID string, err error) Result {
	s.recordAudit(operation, info, email, externalID, err)

	if err != nil {
		metrics.RecordAuthOperation(operation, metrics.OutcomeFailure)
		log.Printf("[AUTH] %s failed for %q: %v", operation, email, err)
		return failWith(err)
	}

	metrics.RecordAuthOperation(operation, metrics.OutcomeSuccess)
	return Ok()
}

func (s *Service) recordAudit(operation string, info RequestInfo, email, externalID string, err error) {
	if s.audit == nil {
		return
	}
	s.audit.LogAuth(audit.AuthEntry{
		Action:     operation,
		ExternalID: externalID,
		Email:      email,
		IPAddress:  info.IPAddress,
		UserAgent:  info.UserAgent,
		RequestID:  info.RequestID,
		Err:        err,
	})
}

func newSessionUser(user *identity.User) SessionUser {
	return SessionUser{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		EmailConfirmedAt: user.EmailConfirmedAt,
		LastSignInAt:     user.LastSignInAt,
		Metadata:         encodeMetadata(user.UserMetadata),
	}
}

func newMirrorRecord(user *identity.User, seen time.Time) *entities.User {
	return &entities.User{
		ExternalID:       user.ID,
		Email:            user.Email,
		Role:             user.Role,
		EmailConfirmedAt: user.EmailConfirmedAt,
		LastSignInAt:     user.LastSignInAt,
		LastSeenAt:       seen,
		Metadata:         encodeMetadata(user.UserMetadata),
	}
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}

func tokensFor(session *identity.Session, now time.Time) Tokens {
	return Tokens{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    sessionExpiry(session, now),
	}
}

// sessionExpiry prefers expires_at, then expires_in, then the token's own exp claim.
func sessionExpiry(session *identity.Session, now time.Time) time.Time {
	if expiry := session.Expiry(); !expiry.IsZero() {
		return expiry
	}
	if session.ExpiresIn > 0 {
		return now.Add(time.Duration(session.ExpiresIn) * time.Second)
	}
	return tokenExpiry(session.AccessToken)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// provider verifies its tokens; this is only used to schedule a refresh.
func tokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
