package portfolio

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/pricefeed"
)

// IdentityFunc returns the signed-in identity of the request.
type IdentityFunc func(c *fiber.Ctx) (identity.Identity, bool)

// Quotes exposes the latest price snapshot.
type Quotes interface {
	Snapshot() (pricefeed.Snapshot, bool)
}

// Handler serves the client dashboard and wallet views.
type Handler struct {
	service  *Service
	quotes   Quotes
	identity IdentityFunc
}

// NewHandler builds a portfolio HTTP handler.
func NewHandler(service *Service, quotes Quotes, identityOf IdentityFunc) *Handler {
	return &Handler{service: service, quotes: quotes, identity: identityOf}
}

// Dashboard renders the client home view. The chart period comes from the
// period query parameter.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	id, ok := h.identity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "not signed in")
	}
	snap, _ := h.quotes.Snapshot()
	d, err := h.service.Dashboard(c.UserContext(), id, snap, c.Query("period"))
	if errors.Is(err, ErrUnknownPeriod) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"view":      "client/dashboard",
		"user":      id,
		"dashboard": d,
	})
}

// Wallet renders the client wallet view.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	id, ok := h.identity(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "not signed in")
	}
	snap, _ := h.quotes.Snapshot()
	w, err := h.service.Wallet(c.UserContext(), id, snap)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"view":   "client/wallet",
		"user":   id,
		"wallet": w,
	})
}
