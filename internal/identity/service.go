package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/logging"
	"github.com/congo-pay/gatekeeper/internal/notification"
	"github.com/congo-pay/gatekeeper/internal/otp"
)

// Codes issues and verifies one-time codes. *otp.Engine satisfies it.
type Codes interface {
	Issue(ctx context.Context, target string, channel otp.Channel, purpose otp.Purpose, ttl time.Duration) (otp.Issued, error)
	Verify(ctx context.Context, target string, channel otp.Channel, purpose otp.Purpose, submitted string) (otp.Outcome, error)
}

// SessionIssuer mints a session credential for an authenticated user.
type SessionIssuer interface {
	IssueSession(ctx context.Context, user User) (Session, error)
}

// Config tunes the identity flows.
type Config struct {
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
	// ExposeCodes returns issued codes in responses. Development only.
	ExposeCodes bool
}

// Dispatch describes a code that was issued and handed to the notifier.
type Dispatch struct {
	Target    string
	Channel   otp.Channel
	Purpose   otp.Purpose
	ExpiresAt time.Time
	// Code is only populated when code exposure is enabled.
	Code string
}

// Service manages the identity lifecycle.
type Service struct {
	repo        Repository
	codes       Codes
	sessions    SessionIssuer
	notifier    notification.Notifier
	logger      *slog.Logger
	phoneRegion string
	exposeCodes bool
	now         func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, codes Codes, sessions SessionIssuer, notifier notification.Notifier, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	region := cfg.PhoneRegion
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &Service{
		repo:        repo,
		codes:       codes,
		sessions:    sessions,
		notifier:    notifier,
		logger:      logger,
		phoneRegion: region,
		exposeCodes: cfg.ExposeCodes,
		now:         time.Now,
	}
}

// PhoneRegion is the region used to normalise phone numbers.
func (s *Service) PhoneRegion() string { return s.phoneRegion }

// Register creates a pending user holding the default role. Neither
// contact point is verified yet.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, invalid(err)
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	phone, err := NormalizePhone(in.Phone, s.phoneRegion)
	if err != nil {
		return User{}, err
	}
	if err := s.ensureFree(ctx, "", email, phone); err != nil {
		return User{}, err
	}

	role, err := s.repo.FindRoleByName(ctx, RoleUser)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return User{}, apperr.Configuration(err, "default role %q is not provisioned", RoleUser)
		}
		return User{}, apperr.Store(err, "load default role")
	}

	now := s.now().UTC()
	user := User{
		ID:        uuid.NewString(),
		Email:     email,
		Phone:     phone,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		RoleID:    role.ID,
		Role:      role.Name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, apperr.Store(err, "create user")
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "email", logging.Mask(email), "phone", logging.Mask(phone))
	return user, nil
}

// ensureFree rejects contact points held by a user other than selfID.
func (s *Service) ensureFree(ctx context.Context, selfID, email, phone string) error {
	if email != "" {
		if err := s.checkFree(ctx, selfID, email, "", ErrEmailTaken); err != nil {
			return err
		}
	}
	if phone != "" {
		if err := s.checkFree(ctx, selfID, "", phone, ErrPhoneTaken); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkFree(ctx context.Context, selfID, email, phone string, taken error) error {
	existing, err := s.repo.FindByEmailOrPhone(ctx, email, phone)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return nil
	case err != nil:
		return apperr.Store(err, "check contact uniqueness")
	case existing.ID == selfID:
		return nil
	default:
		return taken
	}
}

// Profile returns the user behind id.
func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, apperr.Store(err, "load user")
	}
	return user, nil
}

// IsBanned reports the ban flag. Unknown users yield a not-found error.
func (s *Service) IsBanned(ctx context.Context, id string) (bool, error) {
	user, err := s.Profile(ctx, id)
	if err != nil {
		return false, err
	}
	return user.Status == StatusBanned, nil
}

func (s *Service) lookup(ctx context.Context, id Identifier) (User, error) {
	user, err := s.repo.FindByEmailOrPhone(ctx, id.Email, id.Phone)
	if err != nil {
		return User{}, apperr.Store(err, "load user")
	}
	return user, nil
}

// dispatch issues a code and hands it to the notifier.
func (s *Service) dispatch(ctx context.Context, target string, channel otp.Channel, purpose otp.Purpose) (Dispatch, error) {
	issued, err := s.codes.Issue(ctx, target, channel, purpose, 0)
	if err != nil {
		return Dispatch{}, err
	}
	msg := notification.Message{
		Kind:        notification.KindVerificationCode,
		Channel:     string(channel),
		Destination: target,
		Body:        fmt.Sprintf("Your %s code is %s", purpose, issued.Code),
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "code delivery failed", "purpose", purpose, "channel", channel, "error", err)
		}
	}
	d := Dispatch{Target: target, Channel: channel, Purpose: purpose, ExpiresAt: issued.ExpiresAt}
	if s.exposeCodes {
		d.Code = issued.Code
	}
	return d, nil
}

// consume verifies a code and converts any failed outcome to its error.
func (s *Service) consume(ctx context.Context, target string, channel otp.Channel, purpose otp.Purpose, code string) error {
	outcome, err := s.codes.Verify(ctx, target, channel, purpose, code)
	if err != nil {
		return err
	}
	if err := outcome.Err(); err != nil {
		s.logger.InfoContext(ctx, "code rejected", "purpose", purpose, "channel", channel, "outcome", outcome)
		return err
	}
	return nil
}

// activate promotes the user once both contact points are verified.
func (s *Service) activate(ctx context.Context, user User) (User, error) {
	if user.Status != StatusPending || !user.Verified() {
		return user, nil
	}
	ok, err := s.repo.Activate(ctx, user.ID, s.now())
	if err != nil {
		return User{}, apperr.Store(err, "activate user")
	}
	if ok {
		user.Status = StatusActive
		s.logger.InfoContext(ctx, "user activated", "user_id", user.ID)
	}
	return user, nil
}

func hash(secret string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Store(err, "hash secret")
	}
	return h, nil
}

// CheckPIN compares a candidate PIN to the stored hash.
func CheckPIN(user User, candidate string) bool {
	if !user.HasPIN() {
		return false
	}
	return bcrypt.CompareHashAndPassword(user.PINHash, []byte(candidate)) == nil
}

func notBanned(user User) error {
	if user.Status == StatusBanned {
		return apperr.Forbidden("account is banned")
	}
	return nil
}
