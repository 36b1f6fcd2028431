package uploads

import (
	"path/filepath"
	"strings"
)

// Matches reports whether the base name of path matches one of the glob
// patterns, ignoring case. Hidden files never match. An empty pattern list
// matches every visible file.
func Matches(path string, patterns []string) bool {
	base := strings.ToLower(filepath.Base(path))
	if base == "" || strings.HasPrefix(base, ".") {
		return false
	}

	if len(patterns) == 0 {
		return true
	}

	for _, p := range patterns {
		if ok, err := filepath.Match(strings.ToLower(p), base); err == nil && ok {
			return true
		}
	}

	return false
}
