package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		rule     string
		message  string
	}{
		{name: "valid", email: "a@x.com", password: "Abcdef12"},
		{name: "valid unicode", email: "a@x.com", password: "Äbcdefg1Z"},
		{name: "bad email", email: "not-an-email", password: "Abcdef12", rule: RuleEmail, message: "Invalid email address."},
		{name: "empty email", email: "", password: "Abcdef12", rule: RuleEmail, message: "Invalid email address."},
		{name: "too short", email: "a@x.com", password: "Abc12", rule: RuleMinLength, message: "Password must be at least 8 characters."},
		{name: "seven chars", email: "a@x.com", password: "Abcde12", rule: RuleMinLength},
		{name: "no uppercase", email: "a@x.com", password: "abcdef12", rule: RuleUppercase, message: "Password must contain at least one uppercase letter."},
		{name: "no digit", email: "a@x.com", password: "Abcdefgh", rule: RuleDigit, message: "Password must contain at least one number."},
		{name: "too long", email: "a@x.com", password: "A1" + strings.Repeat("a", 71), rule: RuleMaxBytes, message: "Password must be at most 72 bytes."},
		{name: "exactly 72 bytes", email: "a@x.com", password: "A1" + strings.Repeat("a", 70)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCredentials(tt.email, tt.password)
			if tt.rule == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPolicyViolation))

			var policyErr *PolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Equal(t, tt.rule, policyErr.Rule)
			if tt.message != "" {
				assert.Equal(t, tt.message, policyErr.Error())
			}
		})
	}
}

func TestPolicyFlagsAreHonoured(t *testing.T) {
	p := Policy{MinLength: 4}
	assert.NoError(t, p.Check("a@x.com", "abcd"))

	p.MinLength = 10
	err := p.Check("a@x.com", "abcd")
	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, "Password must be at least 10 characters.", policyErr.Message)
}
