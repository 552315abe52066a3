package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// Package names must be 1-64 characters of lowercase alphanumerics with
// single internal hyphens: no leading, trailing, or consecutive hyphens.
const maxNameLength = 64

var (
	validNameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	camelRe     = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	invalidRe   = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRunRe = regexp.MustCompile(`-+`)
)

// ValidateName checks a name against the naming rules without modifying it.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("package name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("package name must be 1-%d characters (got %d)", maxNameLength, len(name))
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("package name cannot contain consecutive hyphens")
	}
	if !validNameRe.MatchString(name) {
		return fmt.Errorf("package name %q must be lowercase alphanumeric with single hyphens", name)
	}
	return nil
}

// Normalize converts an arbitrary name into a valid package name:
// the repository basename is extracted from owner/repo forms, underscores
// and spaces become hyphens, camelCase is split, invalid characters are
// stripped, hyphen runs collapse, and the result is trimmed and truncated.
// An empty result is the only hard failure.
func Normalize(name string) (string, error) {
	s := name
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}

	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	s = camelRe.ReplaceAllString(s, "$1-$2")
	s = strings.ToLower(s)
	s = invalidRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxNameLength {
		s = strings.Trim(s[:maxNameLength], "-")
	}
	if s == "" {
		return "", fmt.Errorf("package name %q normalizes to an empty string", name)
	}
	return s, nil
}
