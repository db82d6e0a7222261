package identity

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/otp"
	"github.com/congo-pay/gatekeeper/internal/pin"
)

// RequestPasswordReset issues a reset code over the identifier's channel.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string) (Dispatch, error) {
	id, err := ParseIdentifier(identifier, s.phoneRegion)
	if err != nil {
		return Dispatch{}, err
	}
	user, err := s.lookup(ctx, id)
	if err != nil {
		return Dispatch{}, err
	}
	if err := notBanned(user); err != nil {
		return Dispatch{}, err
	}
	return s.dispatch(ctx, id.Target(), id.Channel(), otp.PurposePasswordReset)
}

// ConfirmPasswordReset consumes a reset code and replaces the password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, identifier, code, password string) error {
	id, err := ParseIdentifier(identifier, s.phoneRegion)
	if err != nil {
		return err
	}
	if err := validateCode(code); err != nil {
		return err
	}
	if err := validation.Validate(password, PasswordRules...); err != nil {
		return apperr.Validation("password: %v", err)
	}
	user, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := notBanned(user); err != nil {
		return err
	}
	if err := s.consume(ctx, id.Target(), id.Channel(), otp.PurposePasswordReset, code); err != nil {
		return err
	}
	h, err := hash(password)
	if err != nil {
		return err
	}
	if _, err := s.repo.Update(ctx, user.ID, Patch{PasswordHash: h}); err != nil {
		return apperr.Store(err, "store password")
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

// ChangePIN rotates the PIN of an authenticated user.
func (s *Service) ChangePIN(ctx context.Context, userID, current, next string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := notBanned(user); err != nil {
		return err
	}
	if !user.HasPIN() {
		return apperr.Conflict("pin not set")
	}
	if !CheckPIN(user, current) {
		return apperr.Unauthorized("invalid credentials")
	}
	if err := pin.Validate(next); err != nil {
		return err
	}
	if next == current {
		return apperr.Validation("new pin must differ from current pin")
	}
	h, err := hash(next)
	if err != nil {
		return err
	}
	if _, err := s.repo.Update(ctx, user.ID, Patch{PINHash: h}); err != nil {
		return apperr.Store(err, "store pin")
	}
	return nil
}
