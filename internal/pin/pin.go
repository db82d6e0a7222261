// Package pin holds the structural policy for six-digit login PINs.
package pin

import "github.com/congo-pay/gatekeeper/internal/apperr"

// Length is the only accepted PIN length.
const Length = 6

// Rule names reported in policy violations.
const (
	RuleFormat     = "pin_format"
	RuleRepeated   = "pin_repeated_digit"
	RuleSequential = "pin_sequential"
)

// IsValid reports whether candidate satisfies every PIN rule.
func IsValid(candidate string) bool {
	return check(candidate) == ""
}

// Validate returns a policy violation naming the first broken rule.
func Validate(candidate string) error {
	switch check(candidate) {
	case RuleFormat:
		return apperr.Policy(RuleFormat, "pin must be exactly %d digits", Length)
	case RuleRepeated:
		return apperr.Policy(RuleRepeated, "pin digits must all be different")
	case RuleSequential:
		return apperr.Policy(RuleSequential, "pin must not be an ascending or descending sequence")
	}
	return nil
}

func check(candidate string) string {
	if len(candidate) != Length {
		return RuleFormat
	}
	var seen [10]bool
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if c < '0' || c > '9' {
			return RuleFormat
		}
		d := c - '0'
		if seen[d] {
			return RuleRepeated
		}
		seen[d] = true
	}
	if monotonic(candidate, 1) || monotonic(candidate, -1) {
		return RuleSequential
	}
	return ""
}

// monotonic reports whether every digit equals the previous one plus step.
func monotonic(s string, step int) bool {
	for i := 1; i < len(s); i++ {
		if int(s[i])-int(s[i-1]) != step {
			return false
		}
	}
	return true
}
