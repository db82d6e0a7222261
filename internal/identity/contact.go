package identity

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/congo-pay/gatekeeper/internal/apperr"
	"github.com/congo-pay/gatekeeper/internal/otp"
)

// DefaultPhoneRegion is used for numbers submitted without a country code.
const DefaultPhoneRegion = "CM"

// NormalizeEmail trims and lowercases an address and checks its format.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := validation.Validate(email, validation.Required, validation.Length(3, 254), is.Email); err != nil {
		return "", apperr.Validation("email: %v", err)
	}
	return email, nil
}

// NormalizePhone parses a number and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Validation("phone: cannot be blank")
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperr.Validation("phone: must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Identifier is a login or recovery handle: exactly one field is set.
type Identifier struct {
	Email string
	Phone string
}

// ParseIdentifier treats input containing "@" as an email, anything else
// as a phone number.
func ParseIdentifier(raw, region string) (Identifier, error) {
	if strings.Contains(raw, "@") {
		email, err := NormalizeEmail(raw)
		if err != nil {
			return Identifier{}, err
		}
		return Identifier{Email: email}, nil
	}
	phone, err := NormalizePhone(raw, region)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Phone: phone}, nil
}

// Channel is the code channel matching the identifier kind.
func (id Identifier) Channel() otp.Channel {
	if id.Email != "" {
		return otp.ChannelEmail
	}
	return otp.ChannelPhone
}

// Target is the normalised email or phone.
func (id Identifier) Target() string {
	if id.Email != "" {
		return id.Email
	}
	return id.Phone
}
