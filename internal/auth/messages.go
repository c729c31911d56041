package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mrlokans/gatekeeper/internal/identity"
)

// User-facing messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgEmailNotConfirmed  = "Please confirm your email address before signing in"
	MsgUserExists         = "An account with this email already exists"
	MsgWeakPassword       = "Password is too weak. Please choose a stronger one"
	MsgSamePassword       = "New password must be different from your current password"
	MsgRateLimited        = "Too many requests. Please wait a moment and try again"
	MsgLinkExpired        = "This link is invalid or has expired. Please request a new one"
	MsgLinkOtherBrowser   = "This link can no longer be used here. Please request a new one from this browser"
	MsgSessionExpired     = "Your session has expired. Please sign in again"
	MsgSignupDisabled     = "New sign-ups are currently disabled"
	MsgEmailInvalid       = "Please enter a valid email address"
	MsgUserNotFound       = "No account found for this email"
	MsgAccessDenied       = "Access was denied"
	MsgEmailDisabled      = "Email sign-in is currently disabled"
	MsgProviderTrouble    = "The authentication service is having trouble. Please try again later"
	MsgUnreachable        = "Unable to reach the authentication service. Please try again."
	MsgNotConfigured      = "Authentication is not configured. Please contact the site administrator"
	MsgNotSignedIn        = "Please sign in to continue"
	MsgIncompleteLink     = "The sign-in link is incomplete. Please request a new one"
	MsgGeneric            = "Something went wrong. Please try again."
)

// Notices shown after a successful call.
const (
	NoticeSignedIn          = "Signed in successfully"
	NoticeSignedOut         = "You have been signed out"
	NoticeCheckEmail        = "Check your email for a confirmation link"
	NoticeMagicLinkSent     = "Check your email for a sign-in link"
	NoticeResetSent         = "If an account exists for this email, a password reset link is on its way"
	NoticePasswordUpdated   = "Your password has been updated"
	NoticeChooseNewPassword = "Choose a new password"
)

var (
	// ErrNotSignedIn is returned when an operation needs a mirrored session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrMissingVerifier means the callback carried a PKCE code but this browser
	// holds no verifier for it.
	ErrMissingVerifier = errors.New("no PKCE verifier in session")
	// ErrIncompleteCallback means the callback carried neither a code nor a token hash.
	ErrIncompleteCallback = errors.New("callback is missing code and token_hash")
)

var codeMessages = map[string]string{
	identity.CodeInvalidCredentials:    MsgInvalidCredentials,
	identity.CodeEmailNotConfirmed:     MsgEmailNotConfirmed,
	identity.CodeUserAlreadyExists:     MsgUserExists,
	identity.CodeEmailExists:           MsgUserExists,
	identity.CodeWeakPassword:          MsgWeakPassword,
	identity.CodeSamePassword:          MsgSamePassword,
	identity.CodeEmailRateLimit:        MsgRateLimited,
	identity.CodeRequestRateLimit:      MsgRateLimited,
	identity.CodeOTPExpired:            MsgLinkExpired,
	identity.CodeFlowStateNotFound:     MsgLinkOtherBrowser,
	identity.CodeBadCodeVerifier:       MsgLinkOtherBrowser,
	identity.CodeSessionNotFound:       MsgSessionExpired,
	identity.CodeRefreshTokenNotFound:  MsgSessionExpired,
	identity.CodeRefreshTokenReused:    MsgSessionExpired,
	identity.CodeBadJWT:                MsgSessionExpired,
	identity.CodeSignupDisabled:        MsgSignupDisabled,
	identity.CodeEmailAddressInvalid:   MsgEmailInvalid,
	identity.CodeUserNotFound:          MsgUserNotFound,
	identity.CodeAccessDenied:          MsgAccessDenied,
	identity.CodeEmailProviderDisabled: MsgEmailDisabled,
}

// Older provider versions only send a message, keyed here in lower case.
var knownMessages = map[string]string{
	"invalid login credentials":             MsgInvalidCredentials,
	"email not confirmed":                   MsgEmailNotConfirmed,
	"user already registered":               MsgUserExists,
	"email link is invalid or has expired":  MsgLinkExpired,
	"token has expired or is invalid":       MsgLinkExpired,
	"email rate limit exceeded":             MsgRateLimited,
	"invalid refresh token: already used":   MsgSessionExpired,
	"signups not allowed for this instance": MsgSignupDisabled,
}

// MessageFor maps any error from this package or the identity client to text
// that is safe to show the user.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}

	switch {
	case errors.Is(err, ErrNotSignedIn):
		return MsgNotSignedIn
	case errors.Is(err, ErrMissingVerifier):
		return MsgLinkOtherBrowser
	case errors.Is(err, ErrIncompleteCallback):
		return MsgIncompleteLink
	case errors.Is(err, identity.ErrNotConfigured):
		return MsgNotConfigured
	case errors.Is(err, identity.ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return MsgUnreachable
	}

	apiErr, ok := identity.AsAPIError(err)
	if !ok {
		return MsgGeneric
	}

	if msg, ok := codeMessages[apiErr.Code]; ok {
		return msg
	}
	if msg, ok := knownMessages[strings.ToLower(strings.TrimSpace(apiErr.Message))]; ok {
		return msg
	}
	if apiErr.ServerError() || apiErr.Code == identity.CodeUnexpectedFailure {
		return MsgProviderTrouble
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return MsgGeneric
}

// StatusFor picks the HTTP status an API response should carry for err.
// Provider statuses pass through; transport failures become 502.
func StatusFor(err error) int {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.Is(err, ErrMissingVerifier), errors.Is(err, ErrIncompleteCallback):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, identity.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	}

	if apiErr, ok := identity.AsAPIError(err); ok {
		if apiErr.ServerError() {
			return http.StatusBadGateway
		}
		if apiErr.Status >= http.StatusBadRequest {
			return apiErr.Status
		}
	}
	return http.StatusInternalServerError
}
