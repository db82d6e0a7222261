package identity

import (
	"time"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

// Status is the account standing of a user.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusBanned  Status = "banned"
)

// Role names. The set is fixed and bootstrapped by UpsertDefaultRoles.
const (
	RoleAdmin = "admin"
	RoleOwner = "owner"
	RoleUser  = "user"
)

// DefaultRoles lists every role seeded at startup.
var DefaultRoles = []string{RoleAdmin, RoleOwner, RoleUser}

// Role is a named permission bundle referenced by users.
type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// User is an identity record. Role holds the resolved name of RoleID.
type User struct {
	ID              string
	Email           string
	Phone           string
	FirstName       string
	LastName        string
	PINHash         []byte
	PasswordHash    []byte
	RoleID          string
	Role            string
	EmailVerifiedAt *time.Time
	PhoneVerifiedAt *time.Time
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Verified reports whether both contact points have been proven.
func (u User) Verified() bool {
	return u.EmailVerifiedAt != nil && u.PhoneVerifiedAt != nil
}

// HasPIN reports whether a PIN has been set.
func (u User) HasPIN() bool { return len(u.PINHash) > 0 }

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Email           *string
	Phone           *string
	PINHash         []byte
	PasswordHash    []byte
	RoleID          *string
	EmailVerifiedAt *time.Time
	PhoneVerifiedAt *time.Time
	Status          *Status
}

func (p Patch) empty() bool {
	return p.Email == nil && p.Phone == nil && p.PINHash == nil && p.PasswordHash == nil &&
		p.RoleID == nil && p.EmailVerifiedAt == nil && p.PhoneVerifiedAt == nil && p.Status == nil
}

// Session is a freshly issued session credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
	Role      string
}

var (
	ErrUserNotFound = &apperr.Error{Kind: apperr.KindNotFound, Reason: "user", Message: "user not found"}
	ErrRoleNotFound = &apperr.Error{Kind: apperr.KindNotFound, Reason: "role", Message: "role not found"}
	ErrEmailTaken   = &apperr.Error{Kind: apperr.KindConflict, Reason: "email_taken", Message: "email already registered"}
	ErrPhoneTaken   = &apperr.Error{Kind: apperr.KindConflict, Reason: "phone_taken", Message: "phone already registered"}
)
