// Package identitytest provides an in-process fake of the hosted identity
// provider for tests.
package identitytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mrlokans/gatekeeper/internal/identity"
)

// APIKey is the key the fake expects in the apikey header.
const APIKey = "test-anon-key"

var signingKey = []byte("identitytest-signing-key")

// Call records one request the fake received.
type Call struct {
	Method     string
	Path       string
	GrantType  string
	RedirectTo string
	Body       map[string]any
}

// Provider is a fake GoTrue server. Zero value is not usable; use NewProvider.
type Provider struct {
	Server *httptest.Server

	mu            sync.Mutex
	users         map[string]*account // keyed by email
	calls         []Call
	codes         map[string]pendingCode // PKCE auth codes
	tokenHashes   map[string]string      // token_hash -> email
	refreshTokens map[string]string      // refresh token -> email
	accessTokens  map[string]string      // access token -> email
	seq           int

	// AutoConfirm makes /signup return a session instead of a bare user.
	AutoConfirm bool
	// TokenTTL is the access token lifetime. Defaults to one hour.
	TokenTTL time.Duration
	// FailWith forces every request to return this status and error code.
	FailWith *identity.APIError
}

type account struct {
	user     identity.User
	password string
}

type pendingCode struct {
	email     string
	challenge string
}

// NewProvider starts a fake provider. It is closed via t.Cleanup by the caller.
func NewProvider() *Provider {
	p := &Provider{
		users:         make(map[string]*account),
		codes:         make(map[string]pendingCode),
		tokenHashes:   make(map[string]string),
		refreshTokens: make(map[string]string),
		accessTokens:  make(map[string]string),
		TokenTTL:      time.Hour,
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

// URL is the auth API root of the fake.
func (p *Provider) URL() string {
	return p.Server.URL
}

// Close shuts the server down.
func (p *Provider) Close() {
	p.Server.Close()
}

// Client returns an identity client wired to the fake.
func (p *Provider) Client() *identity.Client {
	return identity.NewClient(identity.Config{
		BaseURL:    p.URL(),
		APIKey:     APIKey,
		HTTPClient: p.Server.Client(),
	})
}

// AddUser registers a confirmed user.
func (p *Provider) AddUser(email, password string) identity.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addUserLocked(email, password, true)
}

func (p *Provider) addUserLocked(email, password string, confirmed bool) identity.User {
	now := time.Now().UTC()
	user := identity.User{
		ID:           fmt.Sprintf("00000000-0000-4000-8000-%012d", len(p.users)+1),
		Aud:          "authenticated",
		Role:         "authenticated",
		Email:        email,
		UserMetadata: map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if confirmed {
		user.EmailConfirmedAt = &now
	}
	p.users[email] = &account{user: user, password: password}
	return user
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many requests hit the fake.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// IssueTokenHash creates a token hash as if an email link had been sent to email.
func (p *Provider) IssueTokenHash(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := fmt.Sprintf("hash-%d", len(p.tokenHashes)+1)
	p.tokenHashes[hash] = email
	return hash
}

// IssueCode creates a PKCE auth code bound to the last challenge sent for email.
// It returns "" if no challenge was recorded.
func (p *Provider) IssueCode(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.calls) - 1; i >= 0; i-- {
		call := p.calls[i]
		if call.Body["email"] != email {
			continue
		}
		challenge, _ := call.Body["code_challenge"].(string)
		if challenge == "" {
			return ""
		}
		code := fmt.Sprintf("code-%d", len(p.codes)+1)
		p.codes[code] = pendingCode{email: email, challenge: challenge}
		return code
	}
	return ""
}

// Password returns the current password of a user.
func (p *Provider) Password(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acct, ok := p.users[email]; ok {
		return acct.password
	}
	return ""
}

// AccessTokenValid reports whether an access token has not been revoked.
func (p *Provider) AccessTokenValid(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.accessTokens[token]
	return ok
}

func (p *Provider) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{
		Method:     r.Method,
		Path:       r.URL.Path,
		GrantType:  r.URL.Query().Get("grant_type"),
		RedirectTo: r.URL.Query().Get("redirect_to"),
		Body:       body,
	})
	failWith := p.FailWith
	p.mu.Unlock()

	if r.Header.Get("apikey") != APIKey {
		writeError(w, http.StatusUnauthorized, "no_api_key", "Invalid API key")
		return
	}
	if failWith != nil {
		writeError(w, failWith.Status, failWith.Code, failWith.Message)
		return
	}

	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"name": "GoTrue", "version": "test"})
	case r.URL.Path == "/token" && r.Method == http.MethodPost:
		p.handleToken(w, r.URL.Query().Get("grant_type"), body)
	case r.URL.Path == "/signup" && r.Method == http.MethodPost:
		p.handleSignUp(w, body)
	case r.URL.Path == "/otp" && r.Method == http.MethodPost:
		p.handleOTP(w, body)
	case r.URL.Path == "/recover" && r.Method == http.MethodPost:
		p.handleRecover(w, body)
	case r.URL.Path == "/verify" && r.Method == http.MethodPost:
		p.handleVerify(w, body)
	case r.URL.Path == "/user" && r.Method == http.MethodGet:
		p.handleGetUser(w, r)
	case r.URL.Path == "/user" && r.Method == http.MethodPut:
		p.handleUpdateUser(w, r, body)
	case r.URL.Path == "/logout" && r.Method == http.MethodPost:
		p.handleLogout(w, r)
	default:
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	}
}

func (p *Provider) handleToken(w http.ResponseWriter, grantType string, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch grantType {
	case "password":
		email, _ := body["email"].(string)
		password, _ := body["password"].(string)
		acct, ok := p.users[email]
		if !ok || acct.password != password {
			writeError(w, http.StatusBadRequest, identity.CodeInvalidCredentials, "Invalid login credentials")
			return
		}
		if acct.user.EmailConfirmedAt == nil {
			writeError(w, http.StatusBadRequest, identity.CodeEmailNotConfirmed, "Email not confirmed")
			return
		}
		writeJSON(w, http.StatusOK, p.sessionLocked(acct))
	case "refresh_token":
		token, _ := body["refresh_token"].(string)
		email, ok := p.refreshTokens[token]
		if !ok {
			writeError(w, http.StatusBadRequest, identity.CodeRefreshTokenNotFound, "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(p.refreshTokens, token)
		writeJSON(w, http.StatusOK, p.sessionLocked(p.users[email]))
	case "pkce":
		code, _ := body["auth_code"].(string)
		verifier, _ := body["code_verifier"].(string)
		pending, ok := p.codes[code]
		if !ok {
			writeError(w, http.StatusNotFound, identity.CodeFlowStateNotFound, "invalid flow state, no valid flow state found")
			return
		}
		if identity.ChallengeFor(verifier) != pending.challenge {
			writeError(w, http.StatusBadRequest, identity.CodeBadCodeVerifier, "code challenge does not match previously saved code verifier")
			return
		}
		delete(p.codes, code)
		acct := p.users[pending.email]
		confirmLocked(acct)
		writeJSON(w, http.StatusOK, p.sessionLocked(acct))
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported_grant_type")
	}
}

func (p *Provider) handleSignUp(w http.ResponseWriter, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, _ := body["email"].(string)
	password, _ := body["password"].(string)
	if _, exists := p.users[email]; exists {
		writeError(w, http.StatusUnprocessableEntity, identity.CodeUserAlreadyExists, "User already registered")
		return
	}
	if len(password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, identity.CodeWeakPassword, "Password should be at least 6 characters.")
		return
	}

	p.addUserLocked(email, password, p.AutoConfirm)
	acct := p.users[email]
	if p.AutoConfirm {
		writeJSON(w, http.StatusOK, p.sessionLocked(acct))
		return
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (p *Provider) handleOTP(w http.ResponseWriter, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	email, _ := body["email"].(string)
	if _, exists := p.users[email]; !exists {
		if create, _ := body["create_user"].(bool); !create {
			writeError(w, http.StatusUnprocessableEntity, identity.CodeUserNotFound, "User not found")
			return
		}
		p.addUserLocked(email, "", false)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (p *Provider) handleRecover(w http.ResponseWriter, body map[string]any) {
	// The provider answers 200 whether or not the email exists.
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (p *Provider) handleVerify(w http.ResponseWriter, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, _ := body["token_hash"].(string)
	email, ok := p.tokenHashes[hash]
	if !ok {
		writeError(w, http.StatusForbidden, identity.CodeOTPExpired, "Email link is invalid or has expired")
		return
	}
	delete(p.tokenHashes, hash)
	acct := p.users[email]
	if acct == nil {
		acct = p.users[p.addUserLocked(email, "", false).Email]
	}
	confirmLocked(acct)
	writeJSON(w, http.StatusOK, p.sessionLocked(acct))
}

func (p *Provider) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.bearerLocked(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, identity.CodeBadJWT, "invalid JWT")
		return
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (p *Provider) handleUpdateUser(w http.ResponseWriter, r *http.Request, body map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.bearerLocked(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, identity.CodeBadJWT, "invalid JWT")
		return
	}
	if password, _ := body["password"].(string); password != "" {
		if password == acct.password {
			writeError(w, http.StatusUnprocessableEntity, identity.CodeSamePassword, "New password should be different from the old password.")
			return
		}
		acct.password = password
	}
	acct.user.UpdatedAt = time.Now().UTC()
	writeJSON(w, http.StatusOK, acct.user)
}

func (p *Provider) handleLogout(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, ok := p.accessTokens[token]; !ok {
		writeError(w, http.StatusUnauthorized, identity.CodeBadJWT, "invalid JWT")
		return
	}
	delete(p.accessTokens, token)
	w.WriteHeader(http.StatusNoContent)
}

func (p *Provider) bearerLocked(r *http.Request) (*account, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	email, ok := p.accessTokens[token]
	if !ok {
		return nil, false
	}
	acct, ok := p.users[email]
	return acct, ok
}

func (p *Provider) sessionLocked(acct *account) identity.Session {
	p.seq++
	now := time.Now()
	expiresAt := now.Add(p.TokenTTL)
	signInAt := now.UTC()
	acct.user.LastSignInAt = &signInAt

	claims := jwt.MapClaims{
		"sub":   acct.user.ID,
		"email": acct.user.Email,
		"aud":   "authenticated",
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   fmt.Sprintf("%d", p.seq),
	}
	accessToken, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	refreshToken := fmt.Sprintf("refresh-%s-%d", acct.user.ID, p.seq)

	p.accessTokens[accessToken] = acct.user.Email
	p.refreshTokens[refreshToken] = acct.user.Email

	user := acct.user
	return identity.Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(p.TokenTTL.Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refreshToken,
		User:         &user,
	}
}

func confirmLocked(acct *account) {
	if acct.user.EmailConfirmedAt == nil {
		now := time.Now().UTC()
		acct.user.EmailConfirmedAt = &now
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"code":       status,
		"error_code": code,
		"msg":        msg,
	})
}
