package auth

import (
	"github.com/cryptoboost/portal/internal/access"
	"github.com/cryptoboost/portal/internal/session"
)

const msgPasswordMismatch = "passwords do not match"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AcceptedTerms   bool   `json:"accepted_terms"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// checkConfirmation rejects a form whose two password fields differ. It runs
// before any session or backend call.
func checkConfirmation(password, confirm string) error {
	if password != confirm {
		return &session.AuthError{Kind: session.KindValidation, Message: msgPasswordMismatch}
	}
	return nil
}

// sessionResponse is the body returned by every auth endpoint.
type sessionResponse struct {
	session.State
	// Redirect is where a signed-in browser should go next.
	Redirect string `json:"redirect,omitempty"`
}

func describe(s session.State) sessionResponse {
	resp := sessionResponse{State: s}
	if s.Authenticated() {
		resp.Redirect = access.HomeFor(s.Identity.Role)
	}
	return resp
}
