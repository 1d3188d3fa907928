package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyEnrolled is returned when enrollment is attempted after the durable MFA credential exists.
	ErrAlreadyEnrolled = errors.New("MFA is already configured")
	// ErrEnrollmentNotStarted is returned when an enrollment code arrives without a pending secret.
	ErrEnrollmentNotStarted = errors.New("MFA setup not initiated")
)

// AuthError is a rejected password or one-time code. Message is safe to show to the client.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

var (
	errInvalidPassword = &AuthError{Message: "Invalid password"}
	errInvalidCode     = &AuthError{Message: "Invalid MFA code"}
)
