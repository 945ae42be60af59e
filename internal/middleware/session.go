package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/auth"
	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

// SessionCookie names the cookie carrying the signed browser session id.
const SessionCookie = "portal_session"

const (
	localSessionID = "session_id"
	localManager   = "session_manager"
	localRegistry  = "session_registry"
	localFresh     = "session_fresh"
)

// resolveGrace is how long a request waits for a fresh manager to resolve
// before handlers see it loading.
const resolveGrace = 250 * time.Millisecond

// Session attaches the browser session to the request, issuing a new signed
// session cookie when the request has none or an invalid one. A request with
// a valid cookie gets its manager up front, with a short grace period for a
// manager still resolving its prior session. A fresh session has nothing to
// resolve, so its manager is only created when a handler asks for it.
func Session(tokens *auth.Tokens, registry *session.Registry, secure bool, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid, err := tokens.Parse(c.Cookies(SessionCookie))
		fresh := err != nil
		if fresh {
			if c.Cookies(SessionCookie) != "" {
				logger.Debug("discarding session cookie", slog.Any("error", err))
			}
			var token string
			var exp time.Time
			sid, token, exp, err = tokens.NewSession()
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "session cookie failure")
			}
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookie,
				Value:    token,
				Path:     "/",
				Expires:  exp,
				HTTPOnly: true,
				Secure:   secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(localSessionID, sid)
		c.Locals(localRegistry, registry)
		if fresh {
			c.Locals(localFresh, true)
			return c.Next()
		}

		m := registry.Get(sid)
		select {
		case <-m.Ready():
		default:
			timer := time.NewTimer(resolveGrace)
			select {
			case <-m.Ready():
			case <-timer.C:
			}
			timer.Stop()
		}
		c.Locals(localManager, m)
		return c.Next()
	}
}

var errNoManager = errors.New("middleware: session manager missing; Session middleware not installed")

var signedOut = session.State{Status: session.StatusUnauthenticated}

// Manager returns the manager of the request's browser session, creating it
// for a fresh session. A route served without the Session middleware is a
// wiring defect and panics.
func Manager(c *fiber.Ctx) *session.Manager {
	if m, ok := c.Locals(localManager).(*session.Manager); ok && m != nil {
		return m
	}
	registry, ok := c.Locals(localRegistry).(*session.Registry)
	if !ok || registry == nil {
		panic(errNoManager)
	}
	m := registry.Get(SessionID(c))
	c.Locals(localManager, m)
	return m
}

// SessionID returns the browser session id, or "" outside Session.
func SessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(localSessionID).(string)
	return sid
}

// State returns the session state of the request. A fresh session is signed
// out until a handler signs it in.
func State(c *fiber.Ctx) session.State {
	if m, ok := c.Locals(localManager).(*session.Manager); ok && m != nil {
		return m.State()
	}
	if fresh, _ := c.Locals(localFresh).(bool); fresh {
		return signedOut
	}
	return Manager(c).State()
}

// Identity returns the signed-in identity of the request.
func Identity(c *fiber.Ctx) (identity.Identity, bool) {
	s := State(c)
	if !s.Authenticated() {
		return identity.Identity{}, false
	}
	return *s.Identity, true
}
