package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured indicates the provider URL or API key is missing.
var ErrNotConfigured = errors.New("identity provider is not configured")

// ErrNetwork wraps transport failures (DNS, connection refused, timeouts).
var ErrNetwork = errors.New("identity provider unreachable")

// Error codes returned by GoTrue-compatible providers.
const (
	CodeInvalidCredentials    = "invalid_credentials"
	CodeEmailNotConfirmed     = "email_not_confirmed"
	CodeUserAlreadyExists     = "user_already_exists"
	CodeEmailExists           = "email_exists"
	CodeWeakPassword          = "weak_password"
	CodeSamePassword          = "same_password"
	CodeEmailRateLimit        = "over_email_send_rate_limit"
	CodeRequestRateLimit      = "over_request_rate_limit"
	CodeOTPExpired            = "otp_expired"
	CodeFlowStateNotFound     = "flow_state_not_found"
	CodeBadCodeVerifier       = "bad_code_verifier"
	CodeSessionNotFound       = "session_not_found"
	CodeRefreshTokenNotFound  = "refresh_token_not_found"
	CodeRefreshTokenReused    = "refresh_token_already_used"
	CodeSignupDisabled        = "signup_disabled"
	CodeEmailAddressInvalid   = "email_address_invalid"
	CodeValidationFailed      = "validation_failed"
	CodeBadJWT                = "bad_jwt"
	CodeUserNotFound          = "user_not_found"
	CodeInvalidGrant          = "invalid_grant"
	CodeAccessDenied          = "access_denied"
	CodeUnexpectedFailure     = "unexpected_failure"
	CodeEmailProviderDisabled = "email_provider_disabled"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider error (HTTP %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider error (HTTP %d): %s", e.Status, e.Message)
}

// ServerError reports whether the provider failed on its side.
func (e *APIError) ServerError() bool {
	return e.Status >= http.StatusInternalServerError
}

// AsAPIError unwraps err into an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// errorBody covers the error shapes GoTrue has used across versions.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) toAPIError(status int) *APIError {
	apiErr := &APIError{Status: status}

	switch {
	case b.ErrorCode != "":
		apiErr.Code = b.ErrorCode
	case b.Error != "":
		apiErr.Code = b.Error
	default:
		// Newer responses put the error code in "code" as a string; older ones
		// put the HTTP status there as a number.
		if code, ok := b.Code.(string); ok {
			apiErr.Code = code
		}
	}

	switch {
	case b.Msg != "":
		apiErr.Message = b.Msg
	case b.ErrorDescription != "":
		apiErr.Message = b.ErrorDescription
	case b.Message != "":
		apiErr.Message = b.Message
	default:
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
}
