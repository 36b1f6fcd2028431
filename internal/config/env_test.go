package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/screener.toml")
	t.Setenv(EnvAPIURL, "https://env.example.com/api")
	t.Setenv(EnvDataDir, "/srv/data")

	env := ReadEnvOverrides()
	assert.Equal(t, "/etc/screener.toml", env.ConfigPath)
	assert.Equal(t, "https://env.example.com/api", env.APIURL)
	assert.Equal(t, "/srv/data", env.DataDir)
}

func TestReadEnvOverrides_Empty(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvDataDir, "")

	assert.Equal(t, EnvOverrides{}, ReadEnvOverrides())
}
