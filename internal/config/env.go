package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "SCREENER_GO_CONFIG"
	EnvAPIURL  = "SCREENER_GO_API_URL"
	EnvDataDir = "SCREENER_GO_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // SCREENER_GO_CONFIG: override config file path
	APIURL     string // SCREENER_GO_API_URL: service base URL
	DataDir    string // SCREENER_GO_DATA_DIR: credential store and account files
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIURL:     os.Getenv(EnvAPIURL),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
