package security

import (
	"fmt"
	"strings"
)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3

	// Shorter fragments of a name or mailbox are too common to reject on.
	minPersonalTokenLength = 4
)

// PasswordPolicyConfig holds the tunable thresholds of PasswordPolicy.
type PasswordPolicyConfig struct {
	MinLength           int
	MinCharacterClasses int
	MinStrengthScore    int
}

// DefaultPasswordPolicyConfig returns 10 characters, 3 classes, zxcvbn score 3.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:           defaultMinPasswordLength,
		MinCharacterClasses: defaultMinCharacterClasses,
		MinStrengthScore:    defaultMinZxcvbnScore,
	}
}

func (c PasswordPolicyConfig) normalize() PasswordPolicyConfig {
	def := DefaultPasswordPolicyConfig()
	if c.MinLength <= 0 {
		c.MinLength = def.MinLength
	}
	if c.MinCharacterClasses <= 0 {
		c.MinCharacterClasses = def.MinCharacterClasses
	}
	if c.MinStrengthScore <= 0 {
		c.MinStrengthScore = def.MinStrengthScore
	}
	return c
}

// PasswordPolicy builds a validator per call so the account's email and
// name can feed both the personal-data and the strength checks.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy returns a policy; zero thresholds fall back to defaults.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	return &PasswordPolicy{cfg: cfg.normalize()}
}

// Validator assembles the rule chain for one account.
func (p *PasswordPolicy) Validator(userInputs ...string) *PasswordValidator {
	inputs := make([]string, 0, len(userInputs))
	for _, in := range userInputs {
		if in = strings.TrimSpace(in); in != "" {
			inputs = append(inputs, in)
		}
	}

	return NewPasswordValidator(
		MinLengthRule(p.cfg.MinLength),
		RequireCharacterClassesRule(p.cfg.MinCharacterClasses),
		RejectPersonalDataRule(inputs...),
		RequirePasswordStrengthRule(p.cfg.MinStrengthScore, inputs...),
	)
}

// Validate applies the policy to password.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy not configured")
	}
	return p.Validator(userInputs...).Validate(password)
}

// personalTokens splits emails into their mailbox and names into words.
func personalTokens(inputs []string) []string {
	var tokens []string
	for _, in := range inputs {
		in = strings.ToLower(in)
		if local, _, ok := strings.Cut(in, "@"); ok {
			tokens = append(tokens, local)
			continue
		}
		tokens = append(tokens, strings.Fields(in)...)
	}

	kept := tokens[:0]
	for _, tok := range tokens {
		if len([]rune(tok)) >= minPersonalTokenLength {
			kept = append(kept, tok)
		}
	}
	return kept
}
