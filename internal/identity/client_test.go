package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:    server.URL + "/",
		APIKey:     "anon",
		HTTPClient: server.Client(),
	})
}

func TestClient_SignInWithPassword(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body credentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body.Email)
		assert.Equal(t, "secret123", body.Password)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"token_type":    "bearer",
			"expires_in":    3600,
			"expires_at":    1700000000,
			"refresh_token": "rt",
			"user":          map[string]any{"id": "u-1", "email": "ada@example.com"},
		})
	})

	session, err := client.SignInWithPassword(context.Background(), "ada@example.com", "secret123")

	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
	assert.Equal(t, "rt", session.RefreshToken)
	assert.Equal(t, time.Unix(1700000000, 0), session.Expiry())
	require.NotNil(t, session.User)
	assert.Equal(t, "u-1", session.User.ID)
}

func TestClient_SignUp_PendingConfirmation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signup", r.URL.Path)
		assert.Equal(t, "https://app.example.com/auth/callback", r.URL.Query().Get("redirect_to"))

		var body credentialsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.CodeChallenge)
		assert.Equal(t, "s256", body.CodeChallengeMethod)

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-2", "email": "new@example.com"})
	})

	pkce, err := NewPKCE()
	require.NoError(t, err)

	resp, err := client.SignUp(context.Background(), "new@example.com", "secret123", "https://app.example.com/auth/callback", pkce)

	require.NoError(t, err)
	assert.True(t, resp.NeedsConfirmation())
	require.NotNil(t, resp.User)
	assert.Equal(t, "u-2", resp.User.ID)
}

func TestClient_SignUp_AutoConfirmed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"user":          map[string]any{"id": "u-3", "email": "auto@example.com"},
		})
	})

	resp, err := client.SignUp(context.Background(), "auto@example.com", "secret123", "", nil)

	require.NoError(t, err)
	assert.False(t, resp.NeedsConfirmation())
	assert.Equal(t, "u-3", resp.User.ID)
}

func TestClient_SendMagicLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/otp", r.URL.Path)
		assert.Equal(t, "https://app.example.com/auth/callback", r.URL.Query().Get("redirect_to"))

		var body otpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body.Email)
		assert.True(t, body.CreateUser)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})

	err := client.SendMagicLink(context.Background(), "ada@example.com", "https://app.example.com/auth/callback", nil)
	assert.NoError(t, err)
}

func TestClient_ResetPasswordForEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recover", r.URL.Path)
		assert.Equal(t, "https://app.example.com/auth/callback?reset=true", r.URL.Query().Get("redirect_to"))
		w.WriteHeader(http.StatusOK)
	})

	err := client.ResetPasswordForEmail(context.Background(), "ada@example.com", "https://app.example.com/auth/callback?reset=true", nil)
	assert.NoError(t, err)
}

func TestClient_VerifyOTP(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)

		var body verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, OTPTypeMagicLink, body.Type)
		assert.Equal(t, "hash", body.TokenHash)

		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at", "refresh_token": "rt"})
	})

	session, err := client.VerifyOTP(context.Background(), "hash", OTPTypeMagicLink)

	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
}

func TestClient_ExchangeCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))

		var body pkceGrantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "code", body.AuthCode)
		assert.Equal(t, "verifier", body.CodeVerifier)

		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at"})
	})

	session, err := client.ExchangeCode(context.Background(), "code", "verifier")

	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
}

func TestClient_UserTokenEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		switch {
		case r.URL.Path == "/user" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-1", "email": "ada@example.com"})
		case r.URL.Path == "/user" && r.Method == http.MethodPut:
			var body updateUserRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "newsecret", body.Password)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-1", "email": "ada@example.com"})
		case r.URL.Path == "/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	user, err := client.GetUser(ctx, "user-token")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	user, err = client.UpdatePassword(ctx, "user-token", "newsecret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)

	assert.NoError(t, client.SignOut(ctx, "user-token"))
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{
			name:     "error_code and msg",
			status:   http.StatusBadRequest,
			body:     `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			wantCode: CodeInvalidCredentials,
			wantMsg:  "Invalid login credentials",
		},
		{
			name:     "oauth style",
			status:   http.StatusBadRequest,
			body:     `{"error":"invalid_grant","error_description":"Email not confirmed"}`,
			wantCode: CodeInvalidGrant,
			wantMsg:  "Email not confirmed",
		},
		{
			name:     "string code and message",
			status:   http.StatusTooManyRequests,
			body:     `{"code":"over_email_send_rate_limit","message":"email rate limit exceeded"}`,
			wantCode: CodeEmailRateLimit,
			wantMsg:  "email rate limit exceeded",
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantMsg: "upstream down",
		},
		{
			name:    "empty body",
			status:  http.StatusInternalServerError,
			wantMsg: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.SignInWithPassword(context.Background(), "ada@example.com", "secret123")

			apiErr, ok := AsAPIError(err)
			require.True(t, ok, "expected *APIError, got %v", err)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.status >= 500, apiErr.ServerError())
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, APIKey: "anon", Timeout: time.Second})

	err := client.Health(context.Background())

	assert.True(t, errors.Is(err, ErrNetwork), "expected ErrNetwork, got %v", err)
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{})

	_, err := client.SignInWithPassword(context.Background(), "ada@example.com", "secret123")

	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewPKCE(t *testing.T) {
	p1, err := NewPKCE()
	require.NoError(t, err)
	p2, err := NewPKCE()
	require.NoError(t, err)

	assert.Len(t, p1.Verifier, 43)
	assert.NotEqual(t, p1.Verifier, p2.Verifier)
	assert.Equal(t, ChallengeFor(p1.Verifier), p1.Challenge)
	// RFC 7636 appendix B test vector
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ChallengeFor("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestOTPType_Valid(t *testing.T) {
	assert.True(t, OTPTypeMagicLink.Valid())
	assert.True(t, OTPTypeRecovery.Valid())
	assert.False(t, OTPType("sms").Valid())
	assert.False(t, OTPType("").Valid())
}
