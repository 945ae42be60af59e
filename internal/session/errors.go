package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies expected failures of identity-lifecycle operations.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindCredentials     ErrorKind = "credentials"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindBackend         ErrorKind = "backend"
)

// AuthError is the typed failure returned by Manager operations.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// KindOf returns the kind of an AuthError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

const (
	msgTermsRequired      = "you must accept the terms and conditions"
	msgInvalidCredentials = "invalid email or password"
	msgNotAuthenticated   = "not signed in"
	msgBackendUnavailable = "identity service unavailable"
)

func validationError(msg string, err error) error {
	return &AuthError{Kind: KindValidation, Message: msg, Err: err}
}

func credentialsError(err error) error {
	return &AuthError{Kind: KindCredentials, Message: msgInvalidCredentials, Err: err}
}

func unauthenticatedError() error {
	return &AuthError{Kind: KindUnauthenticated, Message: msgNotAuthenticated}
}

func backendError(err error) error {
	return &AuthError{Kind: KindBackend, Message: msgBackendUnavailable, Err: err}
}
