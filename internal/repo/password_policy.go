package repo

import (
	"fmt"

	"github.com/Skotchmaster/eventbook/internal/config"
)

type PolicyError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type CreateResult struct {
	Succeeded bool
	Errors    []PolicyError
}

// Messages returns the descriptions in rule order.
func (r CreateResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Description)
	}
	return out
}

type PasswordPolicy struct {
	RequiredLength         int
	RequiredUniqueChars    int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

func PolicyFromConfig(s config.PasswordSettings) PasswordPolicy {
	return PasswordPolicy{
		RequiredLength:         s.RequiredLength,
		RequiredUniqueChars:    s.RequiredUniqueChars,
		RequireDigit:           s.RequireDigit,
		RequireLowercase:       s.RequireLowercase,
		RequireUppercase:       s.RequireUppercase,
		RequireNonAlphanumeric: s.RequireNonAlphanumeric,
	}
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
func isLower(c rune) bool { return c >= 'a' && c <= 'z' }
func isUpper(c rune) bool { return c >= 'A' && c <= 'Z' }

// Validate reports every violated rule; nil means the password is acceptable.
func (p PasswordPolicy) Validate(password string) []PolicyError {
	var errs []PolicyError

	runes := []rune(password)
	if len(runes) < p.RequiredLength {
		errs = append(errs, PolicyError{
			Code:        "PasswordTooShort",
			Description: fmt.Sprintf("Passwords must be at least %d characters.", p.RequiredLength),
		})
	}

	var digit, lower, upper, other bool
	unique := make(map[rune]struct{}, len(runes))
	for _, c := range runes {
		switch {
		case isDigit(c):
			digit = true
		case isLower(c):
			lower = true
		case isUpper(c):
			upper = true
		default:
			other = true
		}
		unique[c] = struct{}{}
	}

	if p.RequireNonAlphanumeric && !other {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresNonAlphanumeric",
			Description: "Passwords must have at least one non alphanumeric character.",
		})
	}
	if p.RequireDigit && !digit {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresDigit",
			Description: "Passwords must have at least one digit ('0'-'9').",
		})
	}
	if p.RequireLowercase && !lower {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresLower",
			Description: "Passwords must have at least one lowercase ('a'-'z').",
		})
	}
	if p.RequireUppercase && !upper {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresUpper",
			Description: "Passwords must have at least one uppercase ('A'-'Z').",
		})
	}
	if p.RequiredUniqueChars >= 1 && len(unique) < p.RequiredUniqueChars {
		errs = append(errs, PolicyError{
			Code:        "PasswordRequiresUniqueChars",
			Description: fmt.Sprintf("Passwords must use at least %d different characters.", p.RequiredUniqueChars),
		})
	}

	return errs
}
