package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Packaging defaults
	assert.Equal(t, 6.0, cfg.Packaging.SegmentTargetDuration)
	assert.Equal(t, "fmp4", cfg.Packaging.ContainerFormat)

	// Encryption defaults
	assert.Equal(t, "NONE", cfg.Encryption.Method)

	// LL-HLS defaults
	assert.Equal(t, 0.5, cfg.LLHLS.PartTargetDuration)
	assert.Equal(t, 6, cfg.LLHLS.MaxRetainedSegments)
	assert.Equal(t, 6*time.Second, cfg.LLHLS.BlockingTimeout)

	// Push defaults
	assert.Equal(t, 3, cfg.Push.Retry.Attempts)
	assert.Equal(t, "continue_on_failure", cfg.Push.Retry.AggregationPolicy)

	// Session defaults
	assert.Equal(t, "./data/sessions", cfg.Session.WorkDir)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 60s

packaging:
  segment_target_duration: 4.0
  container_format: "mpegts"

logging:
  level: "debug"
  format: "text"

llhls:
  part_target_duration: 0.33
  max_retained_segments: 8
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 4.0, cfg.Packaging.SegmentTargetDuration)
	assert.Equal(t, "mpegts", cfg.Packaging.ContainerFormat)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 0.33, cfg.LLHLS.PartTargetDuration)
	assert.Equal(t, 8, cfg.LLHLS.MaxRetainedSegments)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HLSPKG_SERVER_PORT", "3000")
	t.Setenv("HLSPKG_LOGGING_LEVEL", "warn")
	t.Setenv("HLSPKG_PACKAGING_CONTAINER_FORMAT", "mpegts")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "mpegts", cfg.Packaging.ContainerFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
packaging:
  container_format: "fmp4"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("HLSPKG_SERVER_PORT", "9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "fmp4", cfg.Packaging.ContainerFormat)
}

func validBaseConfig() *Config {
	return &Config{
		Server:     ServerConfig{Port: 8080},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Packaging:  PackagingConfig{SegmentTargetDuration: 6, ContainerFormat: "fmp4"},
		Encryption: EncryptionConfig{Method: "NONE"},
		LLHLS:      LLHLSConfig{PartTargetDuration: 0.5, MaxRetainedSegments: 6},
		Push:       PushConfig{Retry: PushRetryConfig{AggregationPolicy: "continue_on_failure"}},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	err := validBaseConfig().Validate()
	assert.NoError(t, err)
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too high", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestValidate_InvalidContainerFormat(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Packaging.ContainerFormat = "avi"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "container_format")
}

func TestValidate_InvalidEncryptionMethod(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Encryption.Method = "RC4"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "encryption.method")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Logging.Level = "invalid"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidMaxRetainedSegments(t *testing.T) {
	cfg := validBaseConfig()
	cfg.LLHLS.MaxRetainedSegments = 0
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_retained_segments")
}

func TestValidate_FailOnPrimaryRequiresPrimaryDestination(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Push.Retry.AggregationPolicy = "fail_on_primary"
	cfg.Push.Destinations = []PushDestinationConfig{{ID: "a", Type: "http"}}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fail_on_primary")

	cfg.Push.Destinations[0].Primary = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidDestinationType(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Push.Destinations = []PushDestinationConfig{{ID: "a", Type: "ftp"}}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "push.destinations[a].type")
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     int
		expected string
	}{
		{"localhost", "127.0.0.1", 8080, "127.0.0.1:8080"},
		{"all interfaces", "0.0.0.0", 3000, "0.0.0.0:3000"},
		{"hostname", "example.com", 443, "example.com:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &ServerConfig{Host: tt.host, Port: tt.port}
			assert.Equal(t, tt.expected, cfg.Address())
		})
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
server:
  port: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestConfig_AllEncryptionMethods(t *testing.T) {
	methods := []string{"NONE", "AES-128", "SAMPLE-AES", "SAMPLE-AES-CTR"}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Encryption.Method = method
			assert.NoError(t, cfg.Validate())
		})
	}
}
