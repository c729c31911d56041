package identity

import "time"

// OTPType is the verification type passed to /verify.
type OTPType string

const (
	OTPTypeSignup      OTPType = "signup"
	OTPTypeInvite      OTPType = "invite"
	OTPTypeMagicLink   OTPType = "magiclink"
	OTPTypeRecovery    OTPType = "recovery"
	OTPTypeEmailChange OTPType = "email_change"
	OTPTypeEmail       OTPType = "email"
)

// Valid reports whether t is a verification type the provider accepts for email links.
func (t OTPType) Valid() bool {
	switch t {
	case OTPTypeSignup, OTPTypeInvite, OTPTypeMagicLink, OTPTypeRecovery, OTPTypeEmailChange, OTPTypeEmail:
		return true
	}
	return false
}

// User is the provider-issued user record.
type User struct {
	ID               string         `json:"id"`
	Aud              string         `json:"aud,omitempty"`
	Role             string         `json:"role,omitempty"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	ConfirmedAt      *time.Time     `json:"confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Session is a token grant issued by the provider.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expiry returns when the access token expires, or the zero time if the
// provider did not say.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Time{}
}

// SignUpResponse is returned by /signup. When email confirmation is enabled the
// provider returns only the user; otherwise it returns a full session.
type SignUpResponse struct {
	Session *Session
	User    *User
}

// NeedsConfirmation reports whether the user must click the emailed link first.
func (r *SignUpResponse) NeedsConfirmation() bool {
	return r.Session == nil
}

type credentialsRequest struct {
	Email               string         `json:"email"`
	Password            string         `json:"password"`
	Data                map[string]any `json:"data,omitempty"`
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod string         `json:"code_challenge_method,omitempty"`
}

type otpRequest struct {
	Email               string `json:"email"`
	CreateUser          bool   `json:"create_user"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

type recoverRequest struct {
	Email               string `json:"email"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
}

type verifyRequest struct {
	Type      OTPType `json:"type"`
	TokenHash string  `json:"token_hash"`
}

type pkceGrantRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

type refreshGrantRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateUserRequest struct {
	Password string `json:"password,omitempty"`
}
