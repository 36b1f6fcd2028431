// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables read by the E2E suite.
const (
	EnvE2EAPIURL      = "SCREENER_GO_E2E_API_URL"
	EnvAllowedTestURL = "SCREENER_GO_ALLOWED_TEST_URLS"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// CheckAllowlist returns the service URL named by urlEnvVar if it appears in
// SCREENER_GO_ALLOWED_TEST_URLS. E2E runs create and delete sessions, so
// they must never point at a service nobody allowed.
func CheckAllowlist(urlEnvVar string) (string, error) {
	allowlist := os.Getenv(EnvAllowedTestURL)
	if allowlist == "" {
		return "", fmt.Errorf("%s not set (example: %s=http://127.0.0.1:8000/api)", EnvAllowedTestURL, EnvAllowedTestURL)
	}

	target := strings.TrimRight(os.Getenv(urlEnvVar), "/")
	if target == "" {
		return "", fmt.Errorf("%s not set", urlEnvVar)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimRight(strings.TrimSpace(a), "/") == target {
			return target, nil
		}
	}

	return "", fmt.Errorf("%s=%q is not in %s=%q", urlEnvVar, target, EnvAllowedTestURL, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
