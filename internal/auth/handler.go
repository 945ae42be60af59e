package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cryptoboost/portal/internal/session"
)

// ManagerFunc returns the session manager of the request's browser session.
type ManagerFunc func(c *fiber.Ctx) *session.Manager

// Handler exposes the identity-lifecycle endpoints.
type Handler struct {
	manager ManagerFunc
}

// NewHandler builds an auth HTTP handler.
func NewHandler(manager ManagerFunc) *Handler {
	return &Handler{manager: manager}
}

// Login signs the browser session in.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m := h.manager(c)
	if err := m.SignIn(c.UserContext(), req.Email, req.Password); err != nil {
		return authError(err)
	}
	return c.Status(http.StatusOK).JSON(describe(m.State()))
}

// Register creates a client account and signs it in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := checkConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return authError(err)
	}
	m := h.manager(c)
	if err := m.SignUp(c.UserContext(), req.Email, req.Password, req.AcceptedTerms); err != nil {
		return authError(err)
	}
	return c.Status(http.StatusCreated).JSON(describe(m.State()))
}

// Logout signs the browser session out. It always succeeds.
func (h *Handler) Logout(c *fiber.Ctx) error {
	m := h.manager(c)
	m.SignOut(c.UserContext())
	return c.Status(http.StatusOK).JSON(describe(m.State()))
}

// Reset starts password recovery. The response does not depend on whether
// the email is registered.
func (h *Handler) Reset(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.manager(c).ResetPassword(c.UserContext(), req.Email); err != nil {
		return authError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "sent"})
}

// UpdatePassword changes the password of the signed-in identity.
func (h *Handler) UpdatePassword(c *fiber.Ctx) error {
	var req passwordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := checkConfirmation(req.Password, req.ConfirmPassword); err != nil {
		return authError(err)
	}
	if err := h.manager(c).UpdatePassword(c.UserContext(), req.Password); err != nil {
		return authError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "updated"})
}

// Session reports the state of the browser session, including loading.
func (h *Handler) Session(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(http.StatusOK).JSON(describe(h.manager(c).State()))
}

func authError(err error) error {
	msg := err.Error()
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		msg = authErr.Message
	}
	switch session.KindOf(err) {
	case session.KindValidation:
		return fiber.NewError(http.StatusBadRequest, msg)
	case session.KindCredentials, session.KindUnauthenticated:
		return fiber.NewError(http.StatusUnauthorized, msg)
	case session.KindBackend:
		return fiber.NewError(http.StatusBadGateway, msg)
	default:
		return fiber.NewError(http.StatusInternalServerError, msg)
	}
}
