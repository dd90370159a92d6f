package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// TestLoadConfig_AppliesFileOverDefaults tests that file values win and unset values keep their defaults.
func TestLoadConfig_AppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
forwarder:
  listen_port: 4000
  keepalive_interval: 3s
upstream:
  api_token: file-token
  health_check:
    enabled: false
mirror:
  enabled: true
  broker: tcp://localhost:1883
  topic: timing/reads
`), 0600))

	config, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, 4000, config.Forwarder.ListenPort)
	assert.Equal(t, 3*time.Second, config.Forwarder.KeepAliveInterval)
	assert.Equal(t, constants.DefaultStaleBufferThreshold, config.Forwarder.StaleBufferThreshold)
	assert.Equal(t, constants.ListenModePrivate, config.Forwarder.ListenMode)
	assert.Equal(t, "file-token", config.Upstream.APIToken)
	assert.Equal(t, constants.DefaultUpstreamHost, config.Upstream.Host)
	assert.False(t, config.Upstream.HealthCheck.Enabled)
	assert.True(t, config.Mirror.Enabled)
	assert.Equal(t, constants.DefaultMirrorQOS, config.Mirror.QOS)
	assert.NoError(t, config.Validate())
}

// TestLoadConfig_MissingFile tests the error path for a missing file.
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), file.NewFileService())

	assert.Error(t, err)
}

// TestConfig_ApplyEnv tests that the environment overrides file values.
func TestConfig_ApplyEnv(t *testing.T) {
	config := DefaultConfig()
	config.Upstream.APIToken = "file-token"

	err := config.ApplyEnv(envLookup(map[string]string{
		EnvAPIToken:   "env-token",
		EnvAPIHost:    "http://localhost:9000",
		EnvListenPort: "3098",
		EnvListenMode: "PUBLIC",
	}))

	require.NoError(t, err)
	assert.Equal(t, "env-token", config.Upstream.APIToken)
	assert.Equal(t, "http://localhost:9000", config.Upstream.Host)
	assert.Equal(t, 3098, config.Forwarder.ListenPort)
	assert.Equal(t, constants.ListenModePublic, config.Forwarder.ListenMode)
	assert.Equal(t, "0.0.0.0:3098", config.ListenAddress())
}

// TestConfig_ApplyEnv_InvalidPort tests that a non-numeric port is rejected.
func TestConfig_ApplyEnv_InvalidPort(t *testing.T) {
	err := DefaultConfig().ApplyEnv(envLookup(map[string]string{EnvListenPort: "abc"}))

	assert.Error(t, err)
}

// TestConfig_Validate tests that every problem is reported.
func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	config.Forwarder.ListenMode = "everywhere"
	config.Mirror.Enabled = true

	err := config.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_token")
	assert.Contains(t, err.Error(), "listen_mode")
	assert.Contains(t, err.Error(), "mirror.broker")
	assert.Contains(t, err.Error(), "mirror.topic")
}

// TestConfig_ListenAddress_Private tests loopback binding.
func TestConfig_ListenAddress_Private(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "127.0.0.1:3097", config.ListenAddress())
}
