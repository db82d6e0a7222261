package identity

import (
	"context"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/otp"
)

// SendEmailChange issues a code to a new email for the user.
func (s *Service) SendEmailChange(ctx context.Context, userID, rawEmail string) (Dispatch, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return Dispatch{}, err
	}
	user, err := s.changeCandidate(ctx, userID)
	if err != nil {
		return Dispatch{}, err
	}
	if email == user.Email {
		return Dispatch{}, apperr.Validation("email: must differ from current email")
	}
	if err := s.ensureFree(ctx, user.ID, email, ""); err != nil {
		return Dispatch{}, err
	}
	return s.dispatch(ctx, email, otp.ChannelEmail, otp.PurposeEmailChange)
}

// VerifyEmailChange consumes the change code and swaps the email. The new
// address counts as verified.
func (s *Service) VerifyEmailChange(ctx context.Context, userID, rawEmail, code string) (User, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return User{}, err
	}
	if err := validateCode(code); err != nil {
		return User{}, err
	}
	user, err := s.changeCandidate(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := s.consume(ctx, email, otp.ChannelEmail, otp.PurposeEmailChange, code); err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err = s.repo.Update(ctx, user.ID, Patch{Email: &email, EmailVerifiedAt: &now})
	if err != nil {
		return User{}, apperr.Store(err, "change email")
	}
	return s.activate(ctx, user)
}

// SendPhoneChange issues a code to a new phone for the user.
func (s *Service) SendPhoneChange(ctx context.Context, userID, rawPhone string) (Dispatch, error) {
	phone, err := NormalizePhone(rawPhone, s.phoneRegion)
	if err != nil {
		return Dispatch{}, err
	}
	user, err := s.changeCandidate(ctx, userID)
	if err != nil {
		return Dispatch{}, err
	}
	if phone == user.Phone {
		return Dispatch{}, apperr.Validation("phone: must differ from current phone")
	}
	if err := s.ensureFree(ctx, user.ID, "", phone); err != nil {
		return Dispatch{}, err
	}
	return s.dispatch(ctx, phone, otp.ChannelPhone, otp.PurposePhoneChange)
}

// VerifyPhoneChange consumes the change code and swaps the phone.
func (s *Service) VerifyPhoneChange(ctx context.Context, userID, rawPhone, code string) (User, error) {
	phone, err := NormalizePhone(rawPhone, s.phoneRegion)
	if err != nil {
		return User{}, err
	}
	if err := validateCode(code); err != nil {
		return User{}, err
	}
	user, err := s.changeCandidate(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := s.consume(ctx, phone, otp.ChannelPhone, otp.PurposePhoneChange, code); err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err = s.repo.Update(ctx, user.ID, Patch{Phone: &phone, PhoneVerifiedAt: &now})
	if err != nil {
		return User{}, apperr.Store(err, "change phone")
	}
	return s.activate(ctx, user)
}

func (s *Service) changeCandidate(ctx context.Context, userID string) (User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := notBanned(user); err != nil {
		return User{}, err
	}
	return user, nil
}
