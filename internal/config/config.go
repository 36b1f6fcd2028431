// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for screener-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

// Config is the top-level configuration structure parsed from a TOML file.
// Every section is optional; missing values keep their defaults.
type Config struct {
	DataDir   string          `toml:"data_dir"`
	Service   ServiceConfig   `toml:"service"`
	Identity  IdentityConfig  `toml:"identity"`
	Session   SessionConfig   `toml:"session"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// ServiceConfig points the client at the screening service.
// anonymous_identity is the X-User-Id sent when nobody is signed in; it must
// match the server's own fallback for unauthenticated callers.
type ServiceConfig struct {
	APIURL            string `toml:"api_url"`
	AnonymousIdentity string `toml:"anonymous_identity"`
}

// IdentityConfig configures the identity provider used for durable sign-in.
type IdentityConfig struct {
	ClientID            string   `toml:"client_id"`
	Tenant              string   `toml:"tenant"`
	Scopes              []string `toml:"scopes"`
	InteractiveFallback bool     `toml:"interactive_fallback"`
}

// SessionConfig controls the expiry heartbeat.
type SessionConfig struct {
	HeartbeatInterval string `toml:"heartbeat_interval"`
}

// TransfersConfig controls resume uploads.
type TransfersConfig struct {
	ParallelUploads int      `toml:"parallel_uploads"`
	UploadPatterns  []string `toml:"upload_patterns"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls HTTP client behavior. max_retries defaults to 0:
// failed session and guest calls surface to the user instead of retrying.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	MaxRetries     int    `toml:"max_retries"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	APIURL     string // --api-url
}
