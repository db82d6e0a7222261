package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/authz"
)

const (
	defaultTokenTTL    = 24 * time.Hour
	defaultTokenIssuer = "gatekeeper"
)

// ErrInvalidToken is the only error Verify returns. Callers cannot tell a
// bad signature from an expired or malformed token.
var ErrInvalidToken = errors.New("invalid token")

// TokenConfig configures session token signing.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Claims is the identity payload carried by a session token.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c Claims) UserID() string { return c.Subject }

// Token is a signed session credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Tokens mints and validates HS256 session tokens. It holds no mutable
// state and is safe for concurrent use.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokens fails with a configuration fault when no secret is set.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, apperr.Configuration(nil, "token signing secret is not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultTokenIssuer
	}
	return &Tokens{secret: []byte(cfg.Secret), ttl: cfg.TTL, issuer: cfg.Issuer, now: time.Now}, nil
}

// Issue signs a token for userID with an optional role hint.
func (t *Tokens) Issue(userID, role string) (Token, error) {
	if userID == "" {
		return Token{}, apperr.Validation("user id is required")
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    t.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify checks signature, algorithm, issuer and expiry.
func (t *Tokens) Verify(raw string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Identify adapts Verify to the bearer check of the authorization chain.
func (t *Tokens) Identify(raw string) (authz.Identity, error) {
	claims, err := t.Verify(raw)
	if err != nil {
		return authz.Identity{}, err
	}
	return authz.Identity{UserID: claims.UserID(), Role: claims.Role}, nil
}
