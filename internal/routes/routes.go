package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/gatekeeper/internal/auth"
	"github.com/congo-pay/gatekeeper/internal/authz"
	"github.com/congo-pay/gatekeeper/internal/config"
	"github.com/congo-pay/gatekeeper/internal/identity"
	"github.com/congo-pay/gatekeeper/internal/middleware"
	"github.com/congo-pay/gatekeeper/internal/notification"
	"github.com/congo-pay/gatekeeper/internal/otp"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Notifier overrides the default logging notifier.
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app)

	codeStore, err := newCodeStore(d)
	if err != nil {
		return err
	}
	engine, err := otp.NewEngine(codeStore, otp.Config{TTL: d.Cfg.OTPTTL, Length: d.Cfg.OTPLength})
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(auth.TokenConfig{Secret: d.Cfg.JWTSecret, TTL: d.Cfg.TokenTTL, Issuer: d.Cfg.TokenIssuer})
	if err != nil {
		return err
	}

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger, d.Cfg.ExposeOTP)
	}
	authSvc := auth.NewService(identityRepo, tokens, d.Cfg.PhoneRegion, d.Logger)
	identitySvc := identity.NewService(identityRepo, engine, authSvc, notifier, d.Logger, identity.Config{
		PhoneRegion: d.Cfg.PhoneRegion,
		ExposeCodes: d.Cfg.ExposeOTP,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := identitySvc.EnsureRoles(ctx); err != nil {
		return fmt.Errorf("provision roles: %w", err)
	}

	chain := authz.NewChain(
		authz.ServiceKey(d.Cfg.ServiceKey, d.Cfg.ServiceRole),
		authz.Bearer(tokens.Identify),
		authz.Standing(identitySvc.IsBanned),
	)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	guarded := api.Group("", middleware.Authorize(chain))

	var limiterCache redis.Cmdable
	if d.Cache != nil {
		limiterCache = d.Cache
	}
	identityHandler := identity.NewHandler(identitySvc)
	RegisterIdentityRoutes(guarded, identityHandler)
	RegisterAuthRoutes(guarded, auth.NewHandler(authSvc), middleware.LoginRateLimit(limiterCache, d.Cfg.LoginRateLimit, d.Cfg.PhoneRegion))
	RegisterAccountRoutes(guarded, identityHandler)
	RegisterAdminRoutes(guarded, identityHandler)

	return nil
}

func newCodeStore(d Deps) (otp.Store, error) {
	switch d.Cfg.OTPStore {
	case config.OTPStorePostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("OTP_STORE=postgres requires a database connection")
		}
		return otp.NewPostgresStore(d.DB), nil
	case config.OTPStoreRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("OTP_STORE=redis requires a redis connection")
		}
		return otp.NewRedisStore(d.Cache, "", d.Cfg.OTPRetention), nil
	default:
		return otp.NewMemoryStore(), nil
	}
}
