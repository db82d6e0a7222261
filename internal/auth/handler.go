package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/identity"
)

// Handler exposes the login endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginResponse struct {
	User    identity.UserResponse    `json:"user"`
	Session identity.SessionResponse `json:"session"`
}

// Login validates credentials and returns a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginInput
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("malformed request body")
	}
	user, session, err := h.svc.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		User:    identity.NewUserResponse(user),
		Session: identity.NewSessionResponse(session),
	})
}
