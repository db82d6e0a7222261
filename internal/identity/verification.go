package identity

import (
	"context"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/otp"
	"github.com/congo-pay/gatekeeper/internal/pin"
)

// SendEmailVerification issues a registration code to a registered,
// not yet verified email.
func (s *Service) SendEmailVerification(ctx context.Context, rawEmail string) (Dispatch, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return Dispatch{}, err
	}
	user, err := s.lookup(ctx, Identifier{Email: email})
	if err != nil {
		return Dispatch{}, err
	}
	if err := notBanned(user); err != nil {
		return Dispatch{}, err
	}
	if user.EmailVerifiedAt != nil {
		return Dispatch{}, apperr.Conflict("email already verified")
	}
	return s.dispatch(ctx, email, otp.ChannelEmail, otp.PurposeRegistrationEmail)
}

// VerifyEmail consumes a registration code and marks the email verified.
func (s *Service) VerifyEmail(ctx context.Context, rawEmail, code string) (User, error) {
	email, err := NormalizeEmail(rawEmail)
	if err != nil {
		return User{}, err
	}
	if err := validateCode(code); err != nil {
		return User{}, err
	}
	user, err := s.lookup(ctx, Identifier{Email: email})
	if err != nil {
		return User{}, err
	}
	if err := notBanned(user); err != nil {
		return User{}, err
	}
	if err := s.consume(ctx, email, otp.ChannelEmail, otp.PurposeRegistrationEmail, code); err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err = s.repo.Update(ctx, user.ID, Patch{EmailVerifiedAt: &now})
	if err != nil {
		return User{}, apperr.Store(err, "mark email verified")
	}
	return s.activate(ctx, user)
}

// SendPhoneVerification issues a registration code to a registered,
// not yet verified phone.
func (s *Service) SendPhoneVerification(ctx context.Context, rawPhone string) (Dispatch, error) {
	phone, err := NormalizePhone(rawPhone, s.phoneRegion)
	if err != nil {
		return Dispatch{}, err
	}
	user, err := s.lookup(ctx, Identifier{Phone: phone})
	if err != nil {
		return Dispatch{}, err
	}
	if err := notBanned(user); err != nil {
		return Dispatch{}, err
	}
	if user.PhoneVerifiedAt != nil {
		return Dispatch{}, apperr.Conflict("phone already verified")
	}
	return s.dispatch(ctx, phone, otp.ChannelPhone, otp.PurposeRegistrationPhone)
}

// VerifyPhone consumes a registration code and marks the phone verified.
func (s *Service) VerifyPhone(ctx context.Context, rawPhone, code string) (User, error) {
	phone, err := NormalizePhone(rawPhone, s.phoneRegion)
	if err != nil {
		return User{}, err
	}
	if err := validateCode(code); err != nil {
		return User{}, err
	}
	user, err := s.lookup(ctx, Identifier{Phone: phone})
	if err != nil {
		return User{}, err
	}
	if err := notBanned(user); err != nil {
		return User{}, err
	}
	if err := s.consume(ctx, phone, otp.ChannelPhone, otp.PurposeRegistrationPhone, code); err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err = s.repo.Update(ctx, user.ID, Patch{PhoneVerifiedAt: &now})
	if err != nil {
		return User{}, apperr.Store(err, "mark phone verified")
	}
	return s.activate(ctx, user)
}

// SetPIN stores the first PIN for a user found by email or phone and
// returns a session. A PIN that is already set is never overwritten.
func (s *Service) SetPIN(ctx context.Context, identifier, candidate string) (User, Session, error) {
	id, err := ParseIdentifier(identifier, s.phoneRegion)
	if err != nil {
		return User{}, Session{}, err
	}
	if err := pin.Validate(candidate); err != nil {
		return User{}, Session{}, err
	}
	user, err := s.lookup(ctx, id)
	if err != nil {
		return User{}, Session{}, err
	}
	if err := notBanned(user); err != nil {
		return User{}, Session{}, err
	}
	if user.HasPIN() {
		return User{}, Session{}, apperr.Conflict("pin already set")
	}
	h, err := hash(candidate)
	if err != nil {
		return User{}, Session{}, err
	}
	user, err = s.repo.Update(ctx, user.ID, Patch{PINHash: h})
	if err != nil {
		return User{}, Session{}, apperr.Store(err, "store pin")
	}
	if user, err = s.activate(ctx, user); err != nil {
		return User{}, Session{}, err
	}
	session, err := s.sessions.IssueSession(ctx, user)
	if err != nil {
		return User{}, Session{}, err
	}
	return user, session, nil
}
