// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Field validation messages shown to clients.
const (
	MsgEmpty           = "Can not be empty"
	MsgInvalidEmail    = "Must be a valid email address"
	MsgUsernameLength  = "Must be at most 64 characters"
	MsgPasswordLength  = "Must be at least 8 characters"
	MsgPasswordClasses = "Must Contain At Least One Upper Case, Lower Case and Number. Dont use spaces."
	MsgPasswordSpecial = "Must Contain At Least One Special Character"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 8
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a list of field validation failures. It implements error.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	parts := make([]string, len(f))
	for i, e := range f {
		parts[i] = e.Field + ": " + e.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// passwordPatterns holds the compiled password complexity rules.
type passwordPatterns struct {
	upper   *regexp.Regexp
	lower   *regexp.Regexp
	digit   *regexp.Regexp
	space   *regexp.Regexp
	special *regexp.Regexp
}

// passwordRules compiles the complexity patterns on first use. The result is never mutated.
var passwordRules = sync.OnceValue(func() *passwordPatterns {
	return &passwordPatterns{
		upper:   regexp.MustCompile(`[A-Z]`),
		lower:   regexp.MustCompile(`[a-z]`),
		digit:   regexp.MustCompile(`[0-9]`),
		space:   regexp.MustCompile(`\s`),
		special: regexp.MustCompile(`^.*?[@$!%*?&].*$`),
	}
})

// ValidatePassword checks password complexity and returns any field errors
// under the given field name.
func ValidatePassword(field, password string) FieldErrors {
	if password == "" {
		return FieldErrors{{Field: field, Message: MsgEmpty}}
	}

	var errs FieldErrors
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs = append(errs, FieldError{Field: field, Message: MsgPasswordLength})
	}

	rules := passwordRules()
	if !rules.upper.MatchString(password) ||
		!rules.lower.MatchString(password) ||
		!rules.digit.MatchString(password) ||
		rules.space.MatchString(password) {
		errs = append(errs, FieldError{Field: field, Message: MsgPasswordClasses})
	}
	if !rules.special.MatchString(password) {
		errs = append(errs, FieldError{Field: field, Message: MsgPasswordSpecial})
	}
	return errs
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(field, email string) FieldErrors {
	if email == "" {
		return FieldErrors{{Field: field, Message: MsgEmpty}}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return FieldErrors{{Field: field, Message: MsgInvalidEmail}}
	}
	return nil
}

// ValidateUsername checks username presence and length.
func ValidateUsername(field, username string) FieldErrors {
	if strings.TrimSpace(username) == "" {
		return FieldErrors{{Field: field, Message: MsgEmpty}}
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return FieldErrors{{Field: field, Message: MsgUsernameLength}}
	}
	return nil
}

// ValidateRegistration validates a registration request.
func ValidateRegistration(username, email, password string) FieldErrors {
	var errs FieldErrors
	errs = append(errs, ValidateUsername("username", username)...)
	errs = append(errs, ValidateEmail("email", email)...)
	errs = append(errs, ValidatePassword("password", password)...)
	return errs
}
