package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Gatekeeper"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultServiceRole    = "admin"
	defaultTokenTTL       = 24 * time.Hour
	defaultTokenIssuer    = "gatekeeper"
	defaultOTPTTL         = 10 * time.Minute
	defaultOTPLength      = 6
	defaultOTPRetention   = 24 * time.Hour
	defaultPhoneRegion    = "CM"
	defaultLoginRateLimit = 5
)

// Code store backends.
const (
	OTPStorePostgres = "postgres"
	OTPStoreRedis    = "redis"
	OTPStoreMemory   = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	DBMaxConns     int

	ServiceKey  string
	ServiceRole string

	JWTSecret   string
	TokenTTL    time.Duration
	TokenIssuer string

	OTPTTL       time.Duration
	OTPLength    int
	OTPStore     string
	OTPRetention time.Duration
	ExposeOTP    bool

	PhoneRegion    string
	LoginRateLimit int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:     getEnv("APP_NAME", defaultAppName),
		AppEnv:      getEnv("APP_ENV", defaultAppEnv),
		Port:        getEnv("PORT", defaultPort),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ServiceKey:  os.Getenv("SERVICE_KEY"),
		ServiceRole: getEnv("SERVICE_ROLE", defaultServiceRole),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenIssuer: getEnv("TOKEN_ISSUER", defaultTokenIssuer),
		OTPStore:    strings.ToLower(os.Getenv("OTP_STORE")),
		PhoneRegion: strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", defaultPhoneRegion)),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", defaultOTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPRetention, err = durationEnv("OTP_RETENTION", defaultOTPRetention); err != nil {
		return Config{}, err
	}
	if cfg.OTPLength, err = intEnv("OTP_LENGTH", defaultOTPLength); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = intEnv("DB_MAX_CONNS", 0); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateLimit, err = intEnv("LOGIN_RATE_LIMIT", defaultLoginRateLimit); err != nil {
		return Config{}, err
	}
	cfg.ExposeOTP = !cfg.IsProduction()
	if v := os.Getenv("EXPOSE_OTP"); v != "" {
		if cfg.ExposeOTP, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid EXPOSE_OTP: %w", err)
		}
	}

	// SERVICE_ROLE=none makes the service key a pure gate: roles then come
	// from the bearer token alone.
	if strings.EqualFold(cfg.ServiceRole, "none") {
		cfg.ServiceRole = ""
	}

	if cfg.OTPStore == "" {
		cfg.OTPStore = OTPStoreMemory
		if cfg.DatabaseURL != "" {
			cfg.OTPStore = OTPStorePostgres
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ServiceKey) == "" {
		return fmt.Errorf("SERVICE_KEY must be set")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.OTPStore == OTPStoreMemory {
			return fmt.Errorf("OTP_STORE=memory is not allowed when APP_ENV=%s", c.AppEnv)
		}
	}
	switch c.OTPStore {
	case OTPStoreMemory:
	case OTPStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("OTP_STORE=postgres requires DATABASE_URL")
		}
	case OTPStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("OTP_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid OTP_STORE %q", c.OTPStore)
	}
	return nil
}

// IsDev reports whether the environment tolerates missing backing services.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as whole seconds, else KEY as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
