package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// maxEmailLength is the RFC 5321 limit.
const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrEmailInvalid     = errors.New("invalid email format")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// ValidationError is a field-level rejection raised before any provider call.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Form bodies. The binding tags cover shape; password length policy is
// checked by the service because the minimum is configurable.
type (
	SignInForm struct {
		Email    string `form:"email" json:"email" binding:"required,account_email"`
		Password string `form:"password" json:"password" binding:"required"`
		Next     string `form:"next" json:"-"`
	}
	SignUpForm struct {
		Email           string `form:"email" json:"email" binding:"required,account_email"`
		Password        string `form:"password" json:"password" binding:"required"`
		ConfirmPassword string `form:"confirm_password" json:"confirm_password" binding:"required,eqfield=Password"`
	}
	EmailForm struct {
		Email string `form:"email" json:"email" binding:"required,account_email"`
	}
	UpdatePasswordForm struct {
		Password        string `form:"password" json:"password" binding:"required"`
		ConfirmPassword string `form:"confirm_password" json:"confirm_password" binding:"required,eqfield=Password"`
	}
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("account_email", func(fl validator.FieldLevel) bool {
			return isValidEmail(fl.Field().String())
		})
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required", Err: ErrEmailRequired}
	}
	if !isValidEmail(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address", Err: ErrEmailInvalid}
	}
	return nil
}

func validatePassword(password string, minLength int) error {
	if password == "" {
		return &ValidationError{Field: "password", Message: "Password is required", Err: ErrPasswordRequired}
	}
	if len([]rune(password)) < minLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("Password must be at least %d characters", minLength),
			Err:     ErrPasswordTooShort,
		}
	}
	return nil
}

func validateConfirmation(password, confirm string) error {
	if password != confirm {
		return &ValidationError{Field: "confirm_password", Message: "Passwords do not match", Err: ErrPasswordMismatch}
	}
	return nil
}

// BindingMessage turns a gin binding error into a message for the form.
func BindingMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Invalid request"
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return "Email is required"
		}
		return "Please enter a valid email address"
	case "Password":
		return "Password is required"
	case "ConfirmPassword":
		if fe.Tag() == "eqfield" {
			return "Passwords do not match"
		}
		return "Please confirm your password"
	}
	return "Invalid " + strings.ToLower(fe.Field())
}
