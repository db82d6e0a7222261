package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/congo-pay/gatekeeper/internal/apperr"
)

// RegisterInput is the registration payload.
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Validate checks field presence. Contact formats are checked during
// normalisation.
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Phone, validation.Required),
	)
}

// SeedInput describes the bootstrap administrator.
type SeedInput struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	PIN       string
}

func (in SeedInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Required),
		validation.Field(&in.LastName, validation.Required),
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Phone, validation.Required),
		validation.Field(&in.PIN, validation.Required),
	)
}

// PasswordRules bound reset passwords. bcrypt ignores bytes past 72.
var PasswordRules = []validation.Rule{validation.Required, validation.Length(8, 72)}

var codeRules = []validation.Rule{validation.Required, is.Digit}

func validateCode(code string) error {
	if err := validation.Validate(code, codeRules...); err != nil {
		return apperr.Validation("code: %v", err)
	}
	return nil
}

func invalid(err error) error {
	return &apperr.Error{Kind: apperr.KindValidation, Message: err.Error(), Err: err}
}
