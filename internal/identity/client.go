// Package identity is a client for a GoTrue-compatible hosted identity provider.
//
// All credential verification, token issuance and session refresh happen at the
// provider; this package only forwards requests and decodes responses. Calls are
// made once and never retried.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrlokans/gatekeeper/internal/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Config holds the provider connection settings.
type Config struct {
	BaseURL    string // Auth API root, e.g. https://<project>.supabase.co/auth/v1
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional; overrides Timeout when set
}

// Client talks to the provider's REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"password"}},
		endpoint: "token",
		body:     credentialsRequest{Email: email, Password: password},
		out:      &session,
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SignUp registers a new user. redirectTo is where the confirmation email sends
// the user back to. pkce may be nil.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string, pkce *PKCE) (*SignUpResponse, error) {
	body := credentialsRequest{Email: email, Password: password}
	if pkce != nil {
		body.CodeChallenge = pkce.Challenge
		body.CodeChallengeMethod = pkce.Method()
	}

	var raw json.RawMessage
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/signup",
		query:    redirectQuery(redirectTo),
		endpoint: "signup",
		body:     body,
		out:      &raw,
	})
	if err != nil {
		return nil, err
	}

	return decodeSignUp(raw)
}

// decodeSignUp handles both response shapes of /signup: a session when
// autoconfirm is on, or the bare user when confirmation is pending.
func decodeSignUp(raw json.RawMessage) (*SignUpResponse, error) {
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode signup response: %w", err)
	}
	if session.AccessToken != "" {
		return &SignUpResponse{Session: &session, User: session.User}, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode signup user: %w", err)
	}
	return &SignUpResponse{User: &user}, nil
}

// SendMagicLink emails a one-time sign-in link. New users are created on first use.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string, pkce *PKCE) error {
	body := otpRequest{Email: email, CreateUser: true}
	if pkce != nil {
		body.CodeChallenge = pkce.Challenge
		body.CodeChallengeMethod = pkce.Method()
	}

	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/otp",
		query:    redirectQuery(redirectTo),
		endpoint: "otp",
		body:     body,
	})
}

// ResetPasswordForEmail emails a password recovery link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string, pkce *PKCE) error {
	body := recoverRequest{Email: email}
	if pkce != nil {
		body.CodeChallenge = pkce.Challenge
		body.CodeChallengeMethod = pkce.Method()
	}

	return c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/recover",
		query:    redirectQuery(redirectTo),
		endpoint: "recover",
		body:     body,
	})
}

// VerifyOTP verifies the token hash carried by an emailed link.
func (c *Client) VerifyOTP(ctx context.Context, tokenHash string, otpType OTPType) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/verify",
		endpoint: "verify",
		body:     verifyRequest{Type: otpType, TokenHash: tokenHash},
		out:      &session,
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ExchangeCode trades a PKCE auth code from a callback for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"pkce"}},
		endpoint: "token",
		body:     pkceGrantRequest{AuthCode: code, CodeVerifier: verifier},
		out:      &session,
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RefreshSession trades a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/token",
		query:    url.Values{"grant_type": {"refresh_token"}},
		endpoint: "token",
		body:     refreshGrantRequest{RefreshToken: refreshToken},
		out:      &session,
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetUser fetches the user record for an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	err := c.do(ctx, request{
		method:      http.MethodGet,
		path:        "/user",
		endpoint:    "user",
		accessToken: accessToken,
		out:         &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword sets a new password for the user owning accessToken.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*User, error) {
	var user User
	err := c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/user",
		endpoint:    "user",
		accessToken: accessToken,
		body:        updateUserRequest{Password: password},
		out:         &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session behind accessToken at the provider.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/logout",
		endpoint:    "logout",
		accessToken: accessToken,
	})
}

// Health checks that the provider is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/health",
		endpoint: "health",
	})
}

type request struct {
	method      string
	path        string
	query       url.Values
	endpoint    string // metrics label
	accessToken string // falls back to the API key when empty
	body        any
	out         any
}

func (c *Client) do(ctx context.Context, r request) error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrNotConfigured
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	bearer := r.accessToken
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveIdentityRequest(r.endpoint, time.Since(start))
	if err != nil {
		metrics.RecordIdentityError(r.endpoint, "network")
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		kind := "client"
		if apiErr.ServerError() {
			kind = "server"
		}
		metrics.RecordIdentityError(r.endpoint, kind)
		return apiErr
	}

	if r.out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func decodeError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if len(data) == 0 || json.Unmarshal(data, &body) != nil {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	return body.toAPIError(resp.StatusCode)
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}
