package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/gatekeeper/internal/identity"
	"github.com/congo-pay/gatekeeper/internal/middleware"
)

// RegisterIdentityRoutes wires registration, verification and recovery.
// They sit behind the service key only.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	users := r.Group("/users")
	users.Post("", h.Register)
	users.Post("/email/send", h.SendEmailVerification)
	users.Post("/email/verify", h.VerifyEmail)
	users.Post("/phone/send", h.SendPhoneVerification)
	users.Post("/phone/verify", h.VerifyPhone)
	users.Post("/pin", h.SetPIN)

	reset := r.Group("/password-reset")
	reset.Post("", h.RequestPasswordReset)
	reset.Post("/confirm", h.ConfirmPasswordReset)
}

// RegisterAccountRoutes wires self-service endpoints for signed-in users.
func RegisterAccountRoutes(r fiber.Router, h *identity.Handler) {
	me := r.Group("/me", middleware.RequireUser(), middleware.RequireRole(identity.DefaultRoles...))
	me.Get("", h.Me)
	me.Put("/pin", h.ChangePIN)
	me.Post("/email", h.SendEmailChange)
	me.Post("/email/verify", h.VerifyEmailChange)
	me.Post("/phone", h.SendPhoneChange)
	me.Post("/phone/verify", h.VerifyPhoneChange)
}

// RegisterAdminRoutes wires user administration.
func RegisterAdminRoutes(r fiber.Router, h *identity.Handler) {
	admin := r.Group("/admin/users", middleware.RequireRole(identity.RoleAdmin))
	admin.Get("/:id", h.Get)
	admin.Post("/:id/ban", h.Ban)
	admin.Delete("/:id/ban", h.Unban)
	admin.Put("/:id/role", h.AssignRole)
}
