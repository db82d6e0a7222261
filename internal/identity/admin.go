package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/logging"
	"github.com/congo-pay/gatekeeper/internal/pin"
)

// Ban marks the user banned. Sessions already issued are rejected by the
// standing check from then on.
func (s *Service) Ban(ctx context.Context, userID string) (User, error) {
	status := StatusBanned
	user, err := s.repo.Update(ctx, userID, Patch{Status: &status})
	if err != nil {
		return User{}, apperr.Store(err, "ban user")
	}
	s.logger.InfoContext(ctx, "user banned", "user_id", userID)
	return user, nil
}

// Unban restores the standing the user would otherwise have.
func (s *Service) Unban(ctx context.Context, userID string) (User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if user.Status != StatusBanned {
		return user, nil
	}
	status := StatusPending
	if user.Verified() {
		status = StatusActive
	}
	user, err = s.repo.Update(ctx, userID, Patch{Status: &status})
	if err != nil {
		return User{}, apperr.Store(err, "unban user")
	}
	s.logger.InfoContext(ctx, "user unbanned", "user_id", userID)
	return user, nil
}

// AssignRole moves the user to the named role.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) (User, error) {
	role, err := s.repo.FindRoleByName(ctx, roleName)
	if err != nil {
		return User{}, apperr.Store(err, "load role")
	}
	user, err := s.repo.Update(ctx, userID, Patch{RoleID: &role.ID})
	if err != nil {
		return User{}, apperr.Store(err, "assign role")
	}
	s.logger.InfoContext(ctx, "role assigned", "user_id", userID, "role", role.Name)
	return user, nil
}

// EnsureRoles provisions the default roles.
func (s *Service) EnsureRoles(ctx context.Context) error {
	return apperr.Store(s.repo.UpsertDefaultRoles(ctx), "provision roles")
}

// Seed provisions the default roles and, when in is non-empty, an active
// administrator with both contact points verified. An existing user with
// the same email is left untouched.
func (s *Service) Seed(ctx context.Context, in SeedInput) (User, error) {
	if err := s.EnsureRoles(ctx); err != nil {
		return User{}, err
	}
	if in == (SeedInput{}) {
		return User{}, nil
	}
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
	if err := pin.Validate(in.PIN); err != nil {
		return User{}, err
	}
	existing, err := s.repo.FindByEmailOrPhone(ctx, email, "")
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, apperr.Store(err, "load user")
	}
	role, err := s.repo.FindRoleByName(ctx, RoleAdmin)
	if err != nil {
		return User{}, apperr.Store(err, "load admin role")
	}
	h, err := hash(in.PIN)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user := User{
		ID:              uuid.NewString(),
		Email:           email,
		Phone:           phone,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		PINHash:         h,
		RoleID:          role.ID,
		Role:            role.Name,
		EmailVerifiedAt: &now,
		PhoneVerifiedAt: &now,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, apperr.Store(err, "create admin")
	}
	s.logger.InfoContext(ctx, "administrator seeded", "user_id", user.ID, "email", logging.Mask(email))
	return user, nil
}
