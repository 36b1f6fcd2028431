package sessions

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxNameLen bounds session names in characters.
const maxNameLen = 200

// NormalizeName returns name in NFC with surrounding whitespace removed, so
// visually identical names typed on different platforms compare equal.
func NormalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}

// validateName normalizes name and rejects blank or oversized values.
func validateName(name string) (string, error) {
	n := NormalizeName(name)

	if n == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be blank"}
	}

	if utf8.RuneCountInString(n) > maxNameLen {
		return "", &ValidationError{Field: "name", Reason: "longer than 200 characters"}
	}

	return n, nil
}
