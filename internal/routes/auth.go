package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/auth"
)

// RegisterAuthRoutes wires the identity-lifecycle endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/register", h.Register)
	group.Post("/logout", h.Logout)
	group.Post("/reset", h.Reset)
	group.Put("/password", h.UpdatePassword)
	group.Get("/session", h.Session)
}
