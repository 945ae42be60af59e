package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/access"
	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/middleware"
	"github.com/cryptoboost/portal/internal/pricefeed"
)

// RegisterPriceRoutes exposes the price snapshot. Forcing a refresh is
// reserved to admins.
func RegisterPriceRoutes(r fiber.Router, prices *pricefeed.Aggregator) {
	group := r.Group("/prices")
	group.Get("/", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(priceBody(prices))
	})
	group.Post("/refresh", access.RequireAPI(middleware.State, identity.RoleAdmin), func(c *fiber.Ctx) error {
		refreshed := prices.Refresh(c.UserContext())
		body := priceBody(prices)
		body["refreshed"] = refreshed
		return c.Status(http.StatusOK).JSON(body)
	})
}

func priceBody(prices *pricefeed.Aggregator) fiber.Map {
	snap, ok := prices.Snapshot()
	body := fiber.Map{
		"prices":  []pricefeed.Quote{},
		"loading": prices.Loading(),
	}
	if ok {
		body["prices"] = snap.Quotes
		body["refreshed_at"] = snap.RefreshedAt
	}
	return body
}
