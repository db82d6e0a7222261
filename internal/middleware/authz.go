package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/gatekeeper/internal/authz"
)

// ServiceKeyHeader carries the shared service secret.
const ServiceKeyHeader = "X-Service-Key"

const userIDLocal = "user_id"

// Authorize runs the chain once per request and stores the resulting
// authz.Context in the request's context.Context.
func Authorize(chain *authz.Chain) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := authz.Request{
			ServiceKey:    c.Get(ServiceKeyHeader),
			Authorization: c.Get(fiber.HeaderAuthorization),
		}
		ac, decision := chain.Evaluate(c.UserContext(), req)
		if decision.Denied() {
			return decision.Err()
		}
		c.SetUserContext(authz.WithContext(c.UserContext(), ac))
		if ac.UserID != "" {
			c.Locals(userIDLocal, ac.UserID)
		}
		return c.Next()
	}
}

// RequireRole denies unless the effective role is in allowed.
func RequireRole(allowed ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d := authz.RequireRole(authz.FromContext(c.UserContext()), allowed...); d.Denied() {
			return d.Err()
		}
		return c.Next()
	}
}

// RequireUser denies requests that carry no verified user.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d := authz.RequireUser(authz.FromContext(c.UserContext())); d.Denied() {
			return d.Err()
		}
		return c.Next()
	}
}
