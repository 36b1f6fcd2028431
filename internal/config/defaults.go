package config

// Default values for configuration options. These represent "layer 0" of the
// override chain and work against a locally running service without any
// config file.
const (
	defaultAPIURL             = "http://127.0.0.1:8000/api"
	defaultAnonymousIdentity  = "guest"
	defaultClientID           = "00000000-0000-0000-0000-000000000000"
	defaultTenant             = "common"
	defaultAPIScope           = "api://resume-screener/access_as_user"
	defaultHeartbeatInterval  = "1s"
	defaultParallelUploads    = 4
	defaultLogLevel           = "warn"
	defaultConnectTimeout     = "10s"
	defaultDataTimeout        = "60s"
	defaultMaxRetries         = 0
	defaultInteractiveEnabled = true
)

// defaultUploadPatterns matches the resume formats the service parses.
var defaultUploadPatterns = []string{"*.pdf", "*.docx", "*.txt", "*.zip"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			APIURL:            defaultAPIURL,
			AnonymousIdentity: defaultAnonymousIdentity,
		},
		Identity: IdentityConfig{
			ClientID:            defaultClientID,
			Tenant:              defaultTenant,
			Scopes:              []string{"openid", "profile", "offline_access", defaultAPIScope},
			InteractiveFallback: defaultInteractiveEnabled,
		},
		Session: SessionConfig{
			HeartbeatInterval: defaultHeartbeatInterval,
		},
		Transfers: TransfersConfig{
			ParallelUploads: defaultParallelUploads,
			UploadPatterns:  append([]string(nil), defaultUploadPatterns...),
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			MaxRetries:     defaultMaxRetries,
		},
	}
}
