package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/identity-portal/internal/apperror"
)

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)

	// The password policy is four "contains" checks plus a whitespace
	// check; RE2 has no lookahead to express it as one pattern.
	hasDigit      = regexp.MustCompile(`[0-9]`)
	hasLower      = regexp.MustCompile(`[a-z]`)
	hasUpper      = regexp.MustCompile(`[A-Z]`)
	hasSymbol     = regexp.MustCompile(`[^a-zA-Z0-9]`)
	hasWhitespace = regexp.MustCompile(`\s`)
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72

	msgFirstNameRequired = "First name is required"
	msgLastNameRequired  = "Last name is required"
	msgEmailInvalid      = "Valid email is required"
	msgPasswordPolicy    = "Password must be at least 8 characters with uppercase, lowercase, number and special character"
	msgPasswordTooLong   = "Password must be 72 bytes or fewer"
	msgPasswordMismatch  = "Passwords do not match"
)

// normalizeEmail trims and lower-cases an address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func validPassword(password string) bool {
	return utf8.RuneCountInString(password) >= minPasswordLength &&
		hasDigit.MatchString(password) &&
		hasLower.MatchString(password) &&
		hasUpper.MatchString(password) &&
		hasSymbol.MatchString(password) &&
		!hasWhitespace.MatchString(password)
}

// validateSignup checks the form and returns the normalized email.
func validateSignup(in SignupInput) (string, error) {
	if strings.TrimSpace(in.FirstName) == "" {
		return "", apperror.ValidationFailed("firstName", msgFirstNameRequired)
	}
	if strings.TrimSpace(in.LastName) == "" {
		return "", apperror.ValidationFailed("lastName", msgLastNameRequired)
	}

	email := normalizeEmail(in.Email)
	if !validEmail(email) {
		return "", apperror.ValidationFailed("email", msgEmailInvalid)
	}

	if !validPassword(in.Password) {
		return "", apperror.ValidationFailed("password", msgPasswordPolicy)
	}
	if len(in.Password) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password", msgPasswordTooLong)
	}
	if in.Password != in.ConfirmPassword {
		return "", apperror.ValidationFailed("confirmPassword", msgPasswordMismatch)
	}
	return email, nil
}
