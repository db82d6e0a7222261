package otp

import (
	"errors"
	"time"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

// Channel is the medium a code was issued for.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Purpose scopes a code to the proof it was issued for. A code issued for
// one purpose never satisfies another.
type Purpose string

const (
	PurposeRegistrationEmail Purpose = "registration-email"
	PurposeRegistrationPhone Purpose = "registration-phone"
	PurposePasswordReset     Purpose = "password-reset"
	PurposeEmailChange       Purpose = "email-change"
	PurposePhoneChange       Purpose = "phone-change"
)

// Valid reports whether p belongs to the closed purpose set.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistrationEmail, PurposeRegistrationPhone, PurposePasswordReset,
		PurposeEmailChange, PurposePhoneChange:
		return true
	}
	return false
}

// Outcome is the result of a verification attempt.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeNotFound Outcome = "not_found"
	OutcomeConsumed Outcome = "consumed"
	OutcomeExpired  Outcome = "expired"
	OutcomeMismatch Outcome = "mismatch"
)

// Err converts a failed outcome into a policy violation carrying the
// outcome as its reason. OutcomeOK yields nil.
func (o Outcome) Err() error {
	switch o {
	case OutcomeOK:
		return nil
	case OutcomeNotFound:
		return apperr.Policy(string(o), "no verification code was issued")
	case OutcomeConsumed:
		return apperr.Policy(string(o), "verification code already used")
	case OutcomeExpired:
		return apperr.Policy(string(o), "verification code expired")
	default:
		return apperr.Policy(string(o), "verification code does not match")
	}
}

// Record is a persisted one-time code.
type Record struct {
	ID         string
	Target     string
	Channel    Channel
	Purpose    Purpose
	Code       string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Issued is what the caller receives after issuing a code.
type Issued struct {
	Target    string
	Channel   Channel
	Purpose   Purpose
	Code      string
	ExpiresAt time.Time
}

// ErrNotFound is returned by stores when no record matches a tuple.
var ErrNotFound = errors.New("otp: code not found")
