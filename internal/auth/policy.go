package auth

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Policy rule identifiers.
const (
	RuleEmail     = "email"
	RuleMinLength = "min_length"
	RuleMaxBytes  = "max_bytes"
	RuleUppercase = "uppercase"
	RuleDigit     = "digit"
)

var validate = validator.New()

// Policy defines the syntactic requirements for new credentials.
type Policy struct {
	MinLength    int
	MaxBytes     int
	RequireUpper bool
	RequireDigit bool
}

// DefaultPolicy returns the registration policy: at least 8 characters, one
// uppercase letter and one digit. MaxBytes caps input at bcrypt's 72-byte
// limit so longer passwords are never silently truncated.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:    8,
		MaxBytes:     72,
		RequireUpper: true,
		RequireDigit: true,
	}
}

// Check validates email and password and returns a *PolicyError naming the
// first rule violated, or nil. It performs no I/O.
func (p Policy) Check(email, password string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return &PolicyError{Rule: RuleEmail, Message: "Invalid email address."}
	}

	if utf8.RuneCountInString(password) < p.MinLength {
		return &PolicyError{Rule: RuleMinLength, Message: fmt.Sprintf("Password must be at least %d characters.", p.MinLength)}
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		return &PolicyError{Rule: RuleMaxBytes, Message: fmt.Sprintf("Password must be at most %d bytes.", p.MaxBytes)}
	}

	var hasUpper, hasDigit bool
	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case '0' <= char && char <= '9':
			hasDigit = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return &PolicyError{Rule: RuleUppercase, Message: "Password must contain at least one uppercase letter."}
	}
	if p.RequireDigit && !hasDigit {
		return &PolicyError{Rule: RuleDigit, Message: "Password must contain at least one number."}
	}
	return nil
}

// ValidateCredentials checks email and password against DefaultPolicy.
func ValidateCredentials(email, password string) error {
	return DefaultPolicy().Check(email, password)
}
