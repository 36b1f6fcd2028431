package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section ("" for top level) to its valid keys.
var knownKeys = map[string][]string{
	"":          {"data_dir"},
	"service":   {"api_url", "anonymous_identity"},
	"identity":  {"client_id", "tenant", "scopes", "interactive_fallback"},
	"session":   {"heartbeat_interval"},
	"transfers": {"parallel_uploads", "upload_patterns"},
	"logging":   {"log_level"},
	"network":   {"connect_timeout", "data_timeout", "user_agent", "max_retries"},
}

// knownSections is the sorted list of section names, used for suggestions
// when a whole section is misspelled. Sorted for deterministic output.
var knownSections = func() []string {
	out := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		if s != "" {
			out = append(out, s)
		}
	}

	sort.Strings(out)

	return out
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if err == nil || reported[err.Error()] {
			continue
		}

		reported[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes a single undecoded key, suggesting the closest
// known key in the same section (or the closest section name).
func unknownKeyError(key toml.Key) error {
	switch len(key) {
	case 0:
		return nil
	case 1:
		name := key[0]
		if _, isSection := knownKeys[name]; isSection {
			return fmt.Errorf("config key %q must be a [%s] table", name, name)
		}

		candidates := append(append([]string(nil), knownKeys[""]...), knownSections...)

		return withSuggestion(fmt.Sprintf("unknown config key %q", name), name, candidates)
	default:
		section, name := key[0], key[1]

		keys, ok := knownKeys[section]
		if !ok {
			return withSuggestion(fmt.Sprintf("unknown config section [%s]", section), section, knownSections)
		}

		return withSuggestion(
			fmt.Sprintf("unknown config key %q in [%s]", name, section), name, keys)
	}
}

func withSuggestion(msg, unknown string, candidates []string) error {
	if suggestion := closestMatch(unknown, candidates); suggestion != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	for _, k := range sorted {
		d := levenshtein(strings.ToLower(unknown), k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
