package auth

import (
	"context"
	"errors"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/identity"
	"github.com/congo-pay/gatekeeper/internal/logging"
)

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Service authenticates users and mints their sessions.
type Service struct {
	repo   identity.Repository
	tokens *Tokens
	region string
	logger *slog.Logger
}

// NewService wires login against the identity store.
func NewService(repo identity.Repository, tokens *Tokens, phoneRegion string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, tokens: tokens, region: phoneRegion, logger: logger}
}

// LoginInput is the login payload.
type LoginInput struct {
	Identifier string `json:"identifier"`
	PIN        string `json:"pin"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Identifier, validation.Required),
		validation.Field(&in.PIN, validation.Required),
	)
}

// Login checks a PIN against the user behind identifier. Unknown users,
// users without a PIN and wrong PINs all fail the same way.
func (s *Service) Login(ctx context.Context, in LoginInput) (identity.User, identity.Session, error) {
	if err := in.Validate(); err != nil {
		return identity.User{}, identity.Session{}, apperr.Validation("%v", err)
	}
	id, err := identity.ParseIdentifier(in.Identifier, s.region)
	if err != nil {
		return identity.User{}, identity.Session{}, err
	}
	user, err := s.repo.FindByEmailOrPhone(ctx, id.Email, id.Phone)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, identity.Session{}, errInvalidCredentials
	}
	if err != nil {
		return identity.User{}, identity.Session{}, apperr.Store(err, "load user")
	}
	if user.Status == identity.StatusBanned {
		return identity.User{}, identity.Session{}, apperr.Forbidden("account is banned")
	}
	if !identity.CheckPIN(user, in.PIN) {
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID)
		return identity.User{}, identity.Session{}, errInvalidCredentials
	}
	session, err := s.IssueSession(ctx, user)
	if err != nil {
		return identity.User{}, identity.Session{}, err
	}
	return user, session, nil
}

// IssueSession signs a token for user carrying its role as a hint.
func (s *Service) IssueSession(_ context.Context, user identity.User) (identity.Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return identity.Session{}, apperr.Store(err, "sign session token")
	}
	return identity.Session{Token: token.Value, ExpiresAt: token.ExpiresAt, UserID: user.ID, Role: user.Role}, nil
}
