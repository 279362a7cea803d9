package cloud

import (
	"errors"
	"fmt"
)

// ErrAuth matches every *AuthError via errors.Is.
var ErrAuth = errors.New("authentication failed")

// AuthError is the single failure reported by a Provider. Its message never
// says which part of the credential was wrong; the cause is kept for the
// operational log only.
type AuthError struct {
	// Principal is the identity that failed to authenticate.
	Principal string

	// Cause is the underlying backend or transport error.
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return ErrAuth.Error()
}

// Is reports whether target is ErrAuth.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// Diagnostic returns a message including the cause, for server-side logs.
func (e *AuthError) Diagnostic() string {
	if e.Cause == nil {
		return fmt.Sprintf("authenticating %q: %s", e.Principal, ErrAuth)
	}
	return fmt.Sprintf("authenticating %q: %v", e.Principal, e.Cause)
}

// NewAuthError wraps cause as an AuthError for principal.
func NewAuthError(principal string, cause error) *AuthError {
	return &AuthError{Principal: principal, Cause: cause}
}
