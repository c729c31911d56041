package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"empty", "", ErrPasswordRequired},
		{"short", "abcde", ErrPasswordTooShort},
		{"exact", "abcdef", nil},
		{"multibyte counts runes", "пароль", nil},
		{"multibyte short", "пар", ErrPasswordTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePassword(tt.password, 6)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "password", validationErr.Field)
		})
	}
}

func TestValidatePassword_ConfiguredMinimum(t *testing.T) {
	err := validatePassword("secret123", 12)
	require.Error(t, err)
	assert.Equal(t, "Password must be at least 12 characters", err.Error())
}

func TestValidateConfirmation(t *testing.T) {
	assert.NoError(t, validateConfirmation("secret123", "secret123"))
	assert.ErrorIs(t, validateConfirmation("secret123", "secret124"), ErrPasswordMismatch)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", normalizeEmail("  Ada@Example.COM\t"))
}

func TestBindingMessage(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing email", url.Values{"password": {"x"}, "confirm_password": {"x"}}, "Email is required"},
		{"invalid email", url.Values{"email": {"a@b"}, "password": {"x"}, "confirm_password": {"x"}}, "Please enter a valid email address"},
		{"missing password", url.Values{"email": {"a@example.com"}, "confirm_password": {"x"}}, "Password is required"},
		{"missing confirmation", url.Values{"email": {"a@example.com"}, "password": {"x"}}, "Please confirm your password"},
		{"mismatch", url.Values{"email": {"a@example.com"}, "password": {"x"}, "confirm_password": {"y"}}, "Passwords do not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(tt.form.Encode()))
			c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			var form SignUpForm
			err := c.ShouldBind(&form)
			require.Error(t, err)
			assert.Equal(t, tt.want, BindingMessage(err))
		})
	}
}

func TestBindingMessage_NonValidationError(t *testing.T) {
	var form SignInForm
	err := json.Unmarshal([]byte(`{"email": 5}`), &form)
	require.Error(t, err)
	assert.Equal(t, "Invalid request", BindingMessage(err))
}
