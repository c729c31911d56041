package auth

import "net/http"

// Result is the outcome of every auth operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Notice is an optional success message for the UI, e.g. "check your email".
	Notice string `json:"-"`

	cause error
}

// Ok returns a successful result.
func Ok() Result {
	return Result{Success: true}
}

// OkWithNotice returns a successful result carrying a message for the user.
func OkWithNotice(notice string) Result {
	return Result{Success: true, Notice: notice}
}

// Fail returns a failed result with a human-readable message.
func Fail(msg string) Result {
	return Result{Error: msg}
}

// failWith returns a failed result whose message is derived from err.
func failWith(err error) Result {
	return Result{Error: MessageFor(err), cause: err}
}

// Cause returns the underlying error of a failed result, if known.
func (r Result) Cause() error {
	return r.cause
}

// HTTPStatus is the status an API response for this result should carry.
func (r Result) HTTPStatus() int {
	if r.Success {
		return http.StatusOK
	}
	if r.cause == nil {
		return http.StatusBadRequest
	}
	return StatusFor(r.cause)
}
