package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/gatekeeper/internal/identity"
)

// LoginRateLimit limits login attempts per identifier using Redis if available.
// Identifiers are normalised the way login resolves them, so reformatting a
// phone number or changing email case hits the same bucket. Unparseable
// identifiers are limited per client IP.
func LoginRateLimit(cache redis.Cmdable, maxPerMin int, phoneRegion string) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		key := "rl:login:" + loginSubject(c, phoneRegion)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}

func loginSubject(c *fiber.Ctx, phoneRegion string) string {
	var req struct {
		Identifier string `json:"identifier"`
	}
	_ = c.BodyParser(&req)
	id, err := identity.ParseIdentifier(req.Identifier, phoneRegion)
	if err != nil {
		return "ip:" + c.IP()
	}
	return id.Target()
}
