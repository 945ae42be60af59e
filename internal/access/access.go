// Package access decides whether a session may see a portal view. Decisions
// are derived from the session state on every request and never cached.
package access

import (
	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

// Entry points the controller redirects to.
const (
	LoginPath      = "/auth/login"
	HomePath       = "/"
	ClientHomePath = "/client/dashboard"
	AdminHomePath  = "/admin/dashboard"
)

// Action is the outcome of an access check.
type Action string

const (
	Render   Action = "render"
	Wait     Action = "wait"
	Redirect Action = "redirect"
)

// Decision tells the caller what to do with a view request. Location is set
// only for Redirect.
type Decision struct {
	Action   Action `json:"action"`
	Location string `json:"location,omitempty"`
}

type ruleKind int

const (
	protected ruleKind = iota
	publicOnly
)

// Rule is the access requirement declared by a view.
type Rule struct {
	kind  ruleKind
	roles identity.Roles
}

// Protected requires an authenticated identity holding one of roles.
func Protected(roles ...identity.Role) Rule {
	return Rule{kind: protected, roles: identity.Roles(roles)}
}

// PublicOnly is for views such as login that a signed-in identity skips.
func PublicOnly() Rule {
	return Rule{kind: publicOnly}
}

// Roles returns the roles a protected rule permits.
func (r Rule) Roles() identity.Roles { return r.roles }

// HomeFor is the landing view of role.
func HomeFor(role identity.Role) string {
	switch role {
	case identity.RoleAdmin:
		return AdminHomePath
	case identity.RoleClient:
		return ClientHomePath
	default:
		return HomePath
	}
}

// Decide evaluates rule against state. While the session is loading no
// redirect is ever issued.
func Decide(state session.State, rule Rule) Decision {
	if state.Loading() {
		return Decision{Action: Wait}
	}

	if rule.kind == publicOnly {
		if state.Authenticated() {
			return redirect(HomeFor(state.Identity.Role))
		}
		return Decision{Action: Render}
	}

	if !state.Authenticated() {
		return redirect(LoginPath)
	}
	if !rule.roles.Allows(state.Identity.Role) {
		return redirect(HomePath)
	}
	return Decision{Action: Render}
}

func redirect(location string) Decision {
	return Decision{Action: Redirect, Location: location}
}
