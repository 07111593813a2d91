package api

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameLen is the maximum length for name fields (server names, contact names).
const maxNameLen = 200

// maxShortStringLen is the maximum length for short identifiers (SIP usernames, extensions).
const maxShortStringLen = 40

// maxEmailLen is the maximum length for email addresses (RFC 5321).
const maxEmailLen = 254

// maxPasswordLen is the maximum length for passwords/secrets.
const maxPasswordLen = 256

// maxURLLen is the maximum length for URL fields (websocket URLs).
const maxURLLen = 2048

// maxHostLen is the maximum length for hostnames/IP addresses.
const maxHostLen = 253

// emailRe is a basic email format regex. Not exhaustive; validates structure only.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// extensionRe validates extension numbers: digits only, 1-20 chars.
var extensionRe = regexp.MustCompile(`^\d{1,20}$`)

// validateStringLen checks that a string does not exceed maxLen characters.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen characters.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateEmail checks that a string is a valid-looking email address.
func validateEmail(field, value string) string {
	if value == "" {
		return ""
	}
	if len(value) > maxEmailLen {
		return field + " exceeds maximum length"
	}
	if !emailRe.MatchString(value) {
		return field + " is not a valid email address"
	}
	return ""
}

// validateExtensionNumber checks that an extension number is digits only.
func validateExtensionNumber(field, value string) string {
	if value == "" {
		return ""
	}
	if !extensionRe.MatchString(value) {
		return field + " must contain only digits (max 20)"
	}
	return ""
}

// validateHost checks that a string looks like a valid hostname or IP.
func validateHost(field, value string) string {
	if value == "" {
		return field + " is required"
	}
	if len(value) > maxHostLen {
		return field + " exceeds maximum length"
	}
	// Accept IP addresses.
	if net.ParseIP(value) != nil {
		return ""
	}
	// Basic hostname validation: no spaces, reasonable characters.
	if strings.ContainsAny(value, " \t\n\r") {
		return field + " contains invalid characters"
	}
	return ""
}

// validatePort checks a TCP port is within range.
func validatePort(field string, value int) string {
	if value < 1 || value > 65535 {
		return field + " must be between 1 and 65535"
	}
	return ""
}

// validateVolume checks a hold-music volume is within [0.0, 1.0].
func validateVolume(field string, value float64) string {
	if value < 0.0 || value > 1.0 {
		return fmt.Sprintf("%s must be between 0.0 and 1.0", field)
	}
	return ""
}

// containsControlChars checks whether a string has control characters
// (except common whitespace like \n, \r, \t).
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}
