package organizations

import (
	"regexp"
	"strings"
)

// Slug format: 3–50 chars, lowercase alphanumeric, single hyphens between
// segments. No leading/trailing or doubled hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

const (
	slugMinLen = 3
	slugMaxLen = 50
)

// reservedSlugs are names that collide with platform routes or subdomains.
var reservedSlugs = map[string]struct{}{
	"admin": {}, "api": {}, "app": {}, "auth": {}, "billing": {},
	"dashboard": {}, "docs": {}, "help": {}, "mail": {}, "onboarding": {},
	"settings": {}, "sign-in": {}, "sign-up": {}, "status": {}, "support": {},
	"www": {},
}

// SlugValidation is the outcome of ValidateSlugFormat.
type SlugValidation string

const (
	SlugValid         SlugValidation = "valid"
	SlugTooShort      SlugValidation = "too_short"
	SlugTooLong       SlugValidation = "too_long"
	SlugInvalidFormat SlugValidation = "invalid_format"
	SlugReserved      SlugValidation = "reserved"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a display name:
// "Joe's @ Music #1" becomes "joes-music-1".
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, "'", "")
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > slugMaxLen {
		s = strings.Trim(s[:slugMaxLen], "-")
	}
	return s
}

// ValidateSlugFormat checks length, character set, and the reserved-word set.
func ValidateSlugFormat(slug string) SlugValidation {
	if len(slug) < slugMinLen {
		return SlugTooShort
	}
	if len(slug) > slugMaxLen {
		return SlugTooLong
	}
	if !slugRegex.MatchString(slug) {
		return SlugInvalidFormat
	}
	if _, ok := reservedSlugs[slug]; ok {
		return SlugReserved
	}
	return SlugValid
}
