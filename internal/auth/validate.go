package auth

import (
	"regexp"
	"strings"

	"github.com/dotcommander/forgotyet/internal/models"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	// Mainland mobile numbers: 11 digits starting with 13-19.
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// ValidateEmail rejects anything that is not shaped like an email address.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &models.ValidationError{Field: "email", Value: email, Reason: "not a valid email address"}
	}
	return nil
}

// ValidatePhone rejects anything but an 11-digit mobile number starting with 1[3-9].
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return &models.ValidationError{Field: "phone", Value: phone, Reason: "must be an 11-digit mobile number starting with 13-19"}
	}
	return nil
}

// ValidateIdentity dispatches to the channel's validator.
func ValidateIdentity(ch models.Channel, identity string) error {
	if ch == models.ChannelSMS {
		return ValidatePhone(identity)
	}
	return ValidateEmail(identity)
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return &models.ValidationError{Field: "code", Value: code, Reason: "is required"}
	}
	return nil
}
