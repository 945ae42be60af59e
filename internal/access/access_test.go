package access

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/session"
)

func signedIn(role identity.Role) session.State {
	return session.State{
		Status:   session.StatusAuthenticated,
		Identity: &identity.Identity{ID: "u-1", Email: "someone@demo.com", Role: role},
	}
}

var (
	loading         = session.State{Status: session.StatusLoading}
	unauthenticated = session.State{Status: session.StatusUnauthenticated}
)

func TestProtectedRedirectsForeignRolesHome(t *testing.T) {
	rules := []identity.Roles{{identity.RoleClient}, {identity.RoleAdmin}, {}}
	for _, required := range rules {
		for _, role := range identity.AllRoles {
			d := Decide(signedIn(role), Protected(required...))
			if required.Allows(role) {
				assert.Equal(t, Decision{Action: Render}, d, "role %s on %v", role, required)
				continue
			}
			assert.Equal(t, Decision{Action: Redirect, Location: HomePath}, d, "role %s on %v", role, required)
		}
	}
}

func TestLoadingNeverRedirects(t *testing.T) {
	for _, rule := range []Rule{Protected(identity.RoleClient), Protected(identity.RoleAdmin), PublicOnly()} {
		assert.Equal(t, Decision{Action: Wait}, Decide(loading, rule))
	}
}

func TestUnauthenticatedGoesToLogin(t *testing.T) {
	assert.Equal(t, Decision{Action: Redirect, Location: LoginPath}, Decide(unauthenticated, Protected(identity.RoleClient)))
	assert.Equal(t, Decision{Action: Render}, Decide(unauthenticated, PublicOnly()))

	// An authenticated status without an identity is treated as signed out.
	broken := session.State{Status: session.StatusAuthenticated}
	assert.Equal(t, LoginPath, Decide(broken, Protected(identity.RoleClient)).Location)
}

func TestPublicOnlySendsSignedInHome(t *testing.T) {
	assert.Equal(t, Decision{Action: Redirect, Location: AdminHomePath}, Decide(signedIn(identity.RoleAdmin), PublicOnly()))
	assert.Equal(t, Decision{Action: Redirect, Location: ClientHomePath}, Decide(signedIn(identity.RoleClient), PublicOnly()))
}

func TestSignOutThenProtectedRequestRedirectsToLogin(t *testing.T) {
	dir := identity.NewDirectory(identity.NewMemoryRepository()).WithCost(bcrypt.MinCost)
	ctx := context.Background()
	require.NoError(t, dir.SeedDemo(ctx, "demo123"))

	m := session.NewManager(session.Options{Directory: dir, Store: session.NewMemoryStore()})
	defer m.Close()
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := m.Wait(waitCtx)
	require.NoError(t, err)

	require.NoError(t, m.SignIn(ctx, identity.DemoClientEmail, "demo123"))
	assert.Equal(t, Render, Decide(m.State(), Protected(identity.RoleClient)).Action)
	assert.Equal(t, HomePath, Decide(m.State(), Protected(identity.RoleAdmin)).Location)

	m.SignOut(ctx)
	assert.Equal(t, Decision{Action: Redirect, Location: LoginPath}, Decide(m.State(), Protected(identity.RoleClient)))
}

func TestGuard(t *testing.T) {
	current := unauthenticated
	app := fiber.New()
	stateOf := func(*fiber.Ctx) session.State { return current }
	app.Get("/client/dashboard", Guard(stateOf, Protected(identity.RoleClient)), func(c *fiber.Ctx) error {
		return c.SendString("dashboard")
	})
	app.Get("/auth/login", Guard(stateOf, PublicOnly()), func(c *fiber.Ctx) error {
		return c.SendString("login")
	})

	get := func(path string) (int, string, string) {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, resp.Header.Get(fiber.HeaderLocation), string(body)
	}

	status, location, _ := get("/client/dashboard")
	assert.Equal(t, fiber.StatusFound, status)
	assert.Equal(t, LoginPath, location)

	current = loading
	status, _, body := get("/client/dashboard")
	assert.Equal(t, fiber.StatusAccepted, status)
	assert.JSONEq(t, `{"view":"loading"}`, body)

	current = signedIn(identity.RoleAdmin)
	status, location, _ = get("/auth/login")
	assert.Equal(t, fiber.StatusFound, status)
	assert.Equal(t, AdminHomePath, location)

	current = signedIn(identity.RoleClient)
	status, _, body = get("/client/dashboard")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "dashboard", body)
}
