package session

import (
	"context"
	"errors"
	"time"

	"github.com/cryptoboost/portal/internal/identity"
)

var (
	// ErrBackendCredentials is returned by a Backend when the credentials are rejected.
	ErrBackendCredentials = errors.New("backend rejected credentials")
	// ErrBackendValidation is returned by a Backend when the input is rejected as malformed.
	ErrBackendValidation = errors.New("backend rejected input")
	// ErrNoSession is returned by a Backend operation that needs a signed-in session.
	ErrNoSession = errors.New("no backend session")
)

// BackendSession describes a session held by an external identity backend.
type BackendSession struct {
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// EventKind names a session-change notification.
type EventKind string

const (
	EventSignedIn     EventKind = "signed_in"
	EventSignedOut    EventKind = "signed_out"
	EventTokenExpired EventKind = "token_expired"
	EventUserUpdated  EventKind = "user_updated"
)

// AuthEvent is delivered to OnAuthStateChange listeners. Session is nil for
// sign-out and expiry events.
type AuthEvent struct {
	Kind    EventKind
	Session *BackendSession
}

// Backend is an external identity service. When configured, it owns
// persistence and session continuity. Implementations must not hold internal
// locks while invoking listeners.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (BackendSession, error)
	// SignUp returns a nil session when the account needs confirmation first.
	SignUp(ctx context.Context, email, password string) (*BackendSession, error)
	SignOut(ctx context.Context) error
	// Session returns the current session, if any, restoring it from the
	// backend's own storage.
	Session(ctx context.Context) (*BackendSession, error)
	FetchProfile(ctx context.Context, userID string) (identity.Identity, error)
	OnAuthStateChange(listener func(AuthEvent)) (unsubscribe func())
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
}
