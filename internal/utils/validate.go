package utils

import (
	"fmt"
	"regexp"
)

// MaxSlugLength bounds slugs so they stay usable as Redis keys and object names
const MaxSlugLength = 128

// slugRegex validates a slug:
//   - Starts with a letter or digit
//   - Continues with letters, digits, -, _ or .
//   - Does NOT allow / or \ so a slug is always a single path segment
//   - Does NOT allow : which separates parts of Redis keys
var slugRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func ValidateSlug(slug string) error {
	if len(slug) > MaxSlugLength {
		return fmt.Errorf("slug must be at most %d characters", MaxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug %q must start with a letter or digit and contain only letters, digits, -, _ and .", slug)
	}
	return nil
}

// ValidSlug is ValidateSlug as a predicate
func ValidSlug(slug string) bool {
	return ValidateSlug(slug) == nil
}
