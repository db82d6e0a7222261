package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/authz"
	"github.com/congo-pay/gatekeeper/internal/otp"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Role          string    `json:"role"`
	Status        Status    `json:"status"`
	EmailVerified bool      `json:"email_verified"`
	PhoneVerified bool      `json:"phone_verified"`
	HasPIN        bool      `json:"has_pin"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUserResponse renders a user without secrets.
func NewUserResponse(u User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Phone:         u.Phone,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		Status:        u.Status,
		EmailVerified: u.EmailVerifiedAt != nil,
		PhoneVerified: u.PhoneVerifiedAt != nil,
		HasPIN:        u.HasPIN(),
		CreatedAt:     u.CreatedAt,
	}
}

// SessionResponse carries a session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

// NewSessionResponse renders a session.
func NewSessionResponse(s Session) SessionResponse {
	return SessionResponse{Token: s.Token, TokenType: "Bearer", ExpiresAt: s.ExpiresAt, UserID: s.UserID, Role: s.Role}
}

type dispatchResponse struct {
	Target    string      `json:"target"`
	Channel   otp.Channel `json:"channel"`
	Purpose   otp.Purpose `json:"purpose"`
	ExpiresAt time.Time   `json:"expires_at"`
	Code      string      `json:"code,omitempty"`
}

func newDispatchResponse(d Dispatch) dispatchResponse {
	return dispatchResponse{Target: d.Target, Channel: d.Channel, Purpose: d.Purpose, ExpiresAt: d.ExpiresAt, Code: d.Code}
}

type contactRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type pinRequest struct {
	Identifier string `json:"identifier"`
	PIN        string `json:"pin"`
}

type changePINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

type resetRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
	Password   string `json:"password"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

func currentUser(c *fiber.Ctx) string {
	return authz.FromContext(c.UserContext()).UserID
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterInput
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(NewUserResponse(user))
}

// SendEmailVerification issues a registration email code.
func (h *Handler) SendEmailVerification(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	d, err := h.service.SendEmailVerification(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(newDispatchResponse(d))
}

// VerifyEmail confirms a registration email code.
func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.VerifyEmail(c.UserContext(), req.Email, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// SendPhoneVerification issues a registration phone code.
func (h *Handler) SendPhoneVerification(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	d, err := h.service.SendPhoneVerification(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(newDispatchResponse(d))
}

// VerifyPhone confirms a registration phone code.
func (h *Handler) VerifyPhone(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.VerifyPhone(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// SetPIN stores the first PIN and returns a session.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req pinRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, session, err := h.service.SetPIN(c.UserContext(), req.Identifier, req.PIN)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": NewUserResponse(user), "session": NewSessionResponse(session)})
}

// RequestPasswordReset issues a reset code.
func (h *Handler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	d, err := h.service.RequestPasswordReset(c.UserContext(), req.Identifier)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(newDispatchResponse(d))
}

// ConfirmPasswordReset replaces the password.
func (h *Handler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req resetRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	if err := h.service.ConfirmPasswordReset(c.UserContext(), req.Identifier, req.Code, req.Password); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Profile(c.UserContext(), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// ChangePIN rotates the caller's PIN.
func (h *Handler) ChangePIN(c *fiber.Ctx) error {
	var req changePINRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	if err := h.service.ChangePIN(c.UserContext(), currentUser(c), req.CurrentPIN, req.NewPIN); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SendEmailChange issues a code to the caller's new email.
func (h *Handler) SendEmailChange(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	d, err := h.service.SendEmailChange(c.UserContext(), currentUser(c), req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(newDispatchResponse(d))
}

// VerifyEmailChange swaps the caller's email.
func (h *Handler) VerifyEmailChange(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.VerifyEmailChange(c.UserContext(), currentUser(c), req.Email, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// SendPhoneChange issues a code to the caller's new phone.
func (h *Handler) SendPhoneChange(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	d, err := h.service.SendPhoneChange(c.UserContext(), currentUser(c), req.Phone)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(newDispatchResponse(d))
}

// VerifyPhoneChange swaps the caller's phone.
func (h *Handler) VerifyPhoneChange(c *fiber.Ctx) error {
	var req contactRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.VerifyPhoneChange(c.UserContext(), currentUser(c), req.Phone, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// Get returns any user by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.Profile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// Ban bans a user.
func (h *Handler) Ban(c *fiber.Ctx) error {
	user, err := h.service.Ban(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// Unban lifts a ban.
func (h *Handler) Unban(c *fiber.Ctx) error {
	user, err := h.service.Unban(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}

// AssignRole changes a user's role.
func (h *Handler) AssignRole(c *fiber.Ctx) error {
	var req roleRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	user, err := h.service.AssignRole(c.UserContext(), c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(NewUserResponse(user))
}
