package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/access"
	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/middleware"
	"github.com/cryptoboost/portal/internal/portfolio"
	"github.com/cryptoboost/portal/internal/pricefeed"
	"github.com/cryptoboost/portal/internal/session"
)

type viewDeps struct {
	prices    *pricefeed.Aggregator
	sessions  *session.Registry
	portfolio *portfolio.Handler
}

var publicViews = map[string]string{
	"/about":         "about",
	"/plans":         "plans",
	"/contact":       "contact",
	"/blog":          "blog",
	"/faq":           "faq",
	"/legal/terms":   "legal/terms",
	"/legal/privacy": "legal/privacy",
	"/legal/cookies": "legal/cookies",
}

var clientViews = []string{"plans", "exchange", "history", "notifications", "profile", "support", "documents"}

var adminViews = []string{"users", "kyc", "transactions", "plans", "settings"}

// RegisterViewRoutes wires the page routes. Each page answers with a view
// descriptor naming the template and the signed-in user.
func RegisterViewRoutes(app *fiber.App, d viewDeps) {
	app.Get("/", func(c *fiber.Ctx) error {
		body := describe(c, "home")
		if snap, ok := d.prices.Snapshot(); ok {
			body["prices"] = snap.Quotes
		}
		body["prices_loading"] = d.prices.Loading()
		return c.Status(http.StatusOK).JSON(body)
	})
	for path, view := range publicViews {
		app.Get(path, renderView(view))
	}
	app.Get("/blog/:slug", func(c *fiber.Ctx) error {
		body := describe(c, "blog/post")
		body["slug"] = c.Params("slug")
		return c.Status(http.StatusOK).JSON(body)
	})

	// Guards are mounted per route: a prefix Use would also catch paths such
	// as /clientele.
	publicOnly := access.Guard(middleware.State, access.PublicOnly())
	public := app.Group("/auth")
	public.Get("/login", publicOnly, renderView("auth/login"))
	public.Get("/register", publicOnly, renderView("auth/register"))
	public.Get("/reset", publicOnly, renderView("auth/reset"))

	clientOnly := access.Guard(middleware.State, access.Protected(identity.RoleClient))
	client := app.Group("/client")
	client.Get("/", clientOnly, func(c *fiber.Ctx) error {
		return c.Redirect(access.ClientHomePath, http.StatusFound)
	})
	client.Get("/dashboard", clientOnly, d.portfolio.Dashboard)
	client.Get("/wallet", clientOnly, d.portfolio.Wallet)
	for _, view := range clientViews {
		client.Get("/"+view, clientOnly, renderView("client/"+view))
	}

	adminOnly := access.Guard(middleware.State, access.Protected(identity.RoleAdmin))
	admin := app.Group("/admin")
	admin.Get("/", adminOnly, func(c *fiber.Ctx) error {
		return c.Redirect(access.AdminHomePath, http.StatusFound)
	})
	admin.Get("/dashboard", adminOnly, func(c *fiber.Ctx) error {
		body := describe(c, "admin/dashboard")
		snap, _ := d.prices.Snapshot()
		fallbacks := 0
		for _, q := range snap.Quotes {
			if q.Fallback {
				fallbacks++
			}
		}
		body["stats"] = fiber.Map{
			"active_sessions": d.sessions.Len(),
			"prices_loading":  d.prices.Loading(),
			"price_fallbacks": fallbacks,
		}
		return c.Status(http.StatusOK).JSON(body)
	})
	for _, view := range adminViews {
		admin.Get("/"+view, adminOnly, renderView("admin/"+view))
	}

	app.Use(func(c *fiber.Ctx) error {
		if isAPI(c.Path()) || c.Method() != fiber.MethodGet {
			return fiber.NewError(http.StatusNotFound, "not found")
		}
		return c.Redirect(access.HomePath, http.StatusFound)
	})
}

func renderView(view string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(describe(c, view))
	}
}

func describe(c *fiber.Ctx, view string) fiber.Map {
	body := fiber.Map{"view": view, "user": nil}
	if id, ok := middleware.Identity(c); ok {
		body["user"] = id
	}
	return body
}
