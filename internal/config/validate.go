package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minHeartbeatInterval = 100 * time.Millisecond
	maxHeartbeatInterval = time.Minute
	minParallelUploads   = 1
	maxParallelUploads   = 16
	minConnectTimeout    = 1 * time.Second
	minDataTimeout       = 5 * time.Second
	maxRetriesLimit      = 10
)

// validLogLevels lists the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDataDir(cfg.DataDir)...)
	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateDataDir(dir string) []error {
	if dir == "" || strings.HasPrefix(dir, "~") {
		return nil
	}

	if !filepath.IsAbs(dir) {
		return []error{fmt.Errorf("data_dir: must be absolute, got %q", dir)}
	}

	return nil
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	u, err := url.Parse(s.APIURL)

	switch {
	case s.APIURL == "":
		errs = append(errs, errors.New("service.api_url: must not be empty"))
	case err != nil:
		errs = append(errs, fmt.Errorf("service.api_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("service.api_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("service.api_url: missing host in %q", s.APIURL))
	}

	if strings.TrimSpace(s.AnonymousIdentity) == "" {
		errs = append(errs, errors.New("service.anonymous_identity: must not be empty"))
	}

	return errs
}

func validateIdentity(i *IdentityConfig) []error {
	var errs []error

	if i.ClientID == "" {
		errs = append(errs, errors.New("identity.client_id: must not be empty"))
	}

	if i.Tenant == "" {
		errs = append(errs, errors.New("identity.tenant: must not be empty"))
	}

	if len(i.Scopes) == 0 {
		errs = append(errs, errors.New("identity.scopes: at least one scope is required"))
	}

	for _, s := range i.Scopes {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("identity.scopes: scopes must not be blank"))
			break
		}
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	d, err := time.ParseDuration(s.HeartbeatInterval)
	if err != nil {
		return []error{fmt.Errorf("session.heartbeat_interval: invalid duration %q: %w", s.HeartbeatInterval, err)}
	}

	if d < minHeartbeatInterval || d > maxHeartbeatInterval {
		return []error{fmt.Errorf("session.heartbeat_interval: must be between %s and %s, got %s",
			minHeartbeatInterval, maxHeartbeatInterval, d)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("transfers.parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	for _, p := range t.UploadPatterns {
		if _, err := filepath.Match(p, "resume.pdf"); err != nil {
			errs = append(errs, fmt.Errorf("transfers.upload_patterns: invalid pattern %q: %w", p, err))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateMinDuration("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateMinDuration("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("network.max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	return errs
}

func validateMinDuration(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", field, minimum, d)}
	}

	return nil
}

// HeartbeatInterval returns the parsed heartbeat interval. Falls back to the
// default when the value is unparseable (Validate reports that case).
func (c *Config) HeartbeatInterval() time.Duration {
	return parseOr(c.Session.HeartbeatInterval, defaultHeartbeatInterval)
}

// ConnectTimeout returns the parsed connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return parseOr(c.Network.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeout returns the parsed overall request timeout.
func (c *Config) DataTimeout() time.Duration {
	return parseOr(c.Network.DataTimeout, defaultDataTimeout)
}

func parseOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
