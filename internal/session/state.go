package session

import "github.com/cryptoboost/portal/internal/identity"

// Status is the tri-state of a browser session.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// State is an immutable snapshot of a session. A Manager replaces its State
// wholesale; readers never observe a partially updated value.
type State struct {
	Status   Status             `json:"status"`
	Identity *identity.Identity `json:"user,omitempty"`
}

var (
	loadingState         = State{Status: StatusLoading}
	unauthenticatedState = State{Status: StatusUnauthenticated}
)

func authenticatedState(id identity.Identity) State {
	return State{Status: StatusAuthenticated, Identity: &id}
}

// Loading reports whether the prior session is still being resolved. While
// loading the identity is unknown, not absent.
func (s State) Loading() bool { return s.Status == StatusLoading }

// Authenticated reports whether an identity is current.
func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}
