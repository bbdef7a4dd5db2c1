// Package config provides configuration management for hlspackager using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort           = 8080
	defaultServerTimeout        = 30 * time.Second
	defaultShutdownTimeout      = 10 * time.Second
	defaultSegmentTargetSeconds = 6.0
	defaultPartTargetSeconds    = 0.5
	defaultHoldBackSeconds      = 3 * defaultSegmentTargetSeconds
	defaultPartHoldBackSeconds  = 3 * defaultPartTargetSeconds
	defaultMaxRetainedSegments  = 6
	defaultMaxPartialsPerSeg    = 8
	defaultBlockingTimeout      = 6 * time.Second
	defaultKeyRotationInterval  = 24 * time.Hour
	defaultRetentionSweep       = "0 */5 * * * *" // every 5 minutes, 6-field
	defaultRetentionAge         = time.Hour
	defaultHTTPPushTimeout      = 10 * time.Second
	defaultPushRetryAttempts    = 3
	defaultPushRetryDelay       = 500 * time.Millisecond
	defaultCircuitThreshold     = 5
	defaultCircuitTimeout       = 30 * time.Second
	defaultBandwidthWindow      = 30 * time.Second
	defaultMinimumSamples       = 3
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Packaging  PackagingConfig  `mapstructure:"packaging"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	LLHLS      LLHLSConfig      `mapstructure:"llhls"`
	Push       PushConfig       `mapstructure:"push"`
	Session    SessionConfig    `mapstructure:"session"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PackagingConfig holds segmentation/container defaults applied to sessions
// that don't override them explicitly.
type PackagingConfig struct {
	// SegmentTargetDuration is the target segment duration in seconds.
	SegmentTargetDuration float64 `mapstructure:"segment_target_duration"`
	// ContainerFormat is "fmp4" or "mpegts".
	ContainerFormat string `mapstructure:"container_format"`
	// VideoCodec / AudioCodec name the codec config extractor's expected input.
	VideoCodec string `mapstructure:"video_codec"`
	AudioCodec string `mapstructure:"audio_codec"`
}

// EncryptionConfig holds the default encryption policy for packaged output.
type EncryptionConfig struct {
	// Method is one of NONE, AES-128, SAMPLE-AES, SAMPLE-AES-CTR.
	Method string `mapstructure:"method"`
	// KeyRotationInterval controls how often a new key is generated for a
	// live session (0 disables rotation: one key for the session's lifetime).
	KeyRotationInterval time.Duration `mapstructure:"key_rotation_interval"`
	// KeyURITemplate is the URI template used for EXT-X-KEY, with "{key_id}"
	// substituted per rotation.
	KeyURITemplate string `mapstructure:"key_uri_template"`
}

// LLHLSConfig holds low-latency HLS orchestration defaults.
type LLHLSConfig struct {
	PartTargetDuration    float64       `mapstructure:"part_target_duration"`
	HoldBack              float64       `mapstructure:"hold_back"`
	PartHoldBack          float64       `mapstructure:"part_hold_back"`
	MaxRetainedSegments   int           `mapstructure:"max_retained_segments"`
	MaxPartialsPerSegment int           `mapstructure:"max_partials_per_segment"`
	CanSkipUntil          float64       `mapstructure:"can_skip_until"`
	BlockingTimeout       time.Duration `mapstructure:"blocking_timeout"`
	URITemplate           string        `mapstructure:"uri_template"`
}

// PushConfig holds the push engine's destination list and shared retry/
// bandwidth policy applied when a destination doesn't override it.
type PushConfig struct {
	Destinations []PushDestinationConfig `mapstructure:"destinations"`
	Retry        PushRetryConfig         `mapstructure:"retry"`
	Bandwidth    BandwidthConfig         `mapstructure:"bandwidth"`
}

// PushDestinationConfig describes one push destination.
type PushDestinationConfig struct {
	ID                string `mapstructure:"id"`
	Type              string `mapstructure:"type"` // http, rtmp, srt
	URL               string `mapstructure:"url"`
	CompressPlaylists bool   `mapstructure:"compress_playlists"`
	// Primary marks this destination as the FailOnPrimary aggregation anchor.
	Primary bool `mapstructure:"primary"`
}

// PushRetryConfig holds the retry/circuit-breaker policy for push destinations.
type PushRetryConfig struct {
	Attempts          int           `mapstructure:"attempts"`
	Delay             time.Duration `mapstructure:"delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CircuitThreshold  int           `mapstructure:"circuit_threshold"`
	CircuitTimeout    time.Duration `mapstructure:"circuit_timeout"`
	// AggregationPolicy is one of continue_on_failure, fail_on_primary, require_all.
	AggregationPolicy string `mapstructure:"aggregation_policy"`
}

// BandwidthConfig holds the bandwidth monitor's alerting thresholds.
type BandwidthConfig struct {
	WindowDuration    time.Duration `mapstructure:"window_duration"`
	RequiredBps       float64       `mapstructure:"required_bps"`
	AlertThreshold    float64       `mapstructure:"alert_threshold"`
	CriticalThreshold float64       `mapstructure:"critical_threshold"`
	MinimumSamples    int           `mapstructure:"minimum_samples"`
}

// SessionConfig holds session-supervisor defaults.
type SessionConfig struct {
	// RetentionSweepCron schedules the sweep that evicts finished sessions'
	// temp segment buffers, 6-field cron (sec min hour dom month dow).
	RetentionSweepCron string `mapstructure:"retention_sweep_cron"`
	// RetentionAge is how long a finished session's buffers are kept before
	// the sweep evicts them.
	RetentionAge time.Duration `mapstructure:"retention_age"`
	// WorkDir is the base directory for temporary segment buffers.
	WorkDir string `mapstructure:"work_dir"`
	// MaxResponseSize caps the size of a single segment/playlist HTTP response
	// the push engine's client will buffer.
	MaxResponseSize ByteSize `mapstructure:"max_response_size"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with HLSPKG_ and use underscores for nesting.
// Example: HLSPKG_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hlspackager")
		v.AddConfigPath("$HOME/.hlspackager")
	}

	// Environment variable settings
	v.SetEnvPrefix("HLSPKG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Packaging defaults
	v.SetDefault("packaging.segment_target_duration", defaultSegmentTargetSeconds)
	v.SetDefault("packaging.container_format", "fmp4")
	v.SetDefault("packaging.video_codec", "h264")
	v.SetDefault("packaging.audio_codec", "aac")

	// Encryption defaults
	v.SetDefault("encryption.method", "NONE")
	v.SetDefault("encryption.key_rotation_interval", defaultKeyRotationInterval)
	v.SetDefault("encryption.key_uri_template", "/keys/{key_id}")

	// LL-HLS defaults
	v.SetDefault("llhls.part_target_duration", defaultPartTargetSeconds)
	v.SetDefault("llhls.hold_back", defaultHoldBackSeconds)
	v.SetDefault("llhls.part_hold_back", defaultPartHoldBackSeconds)
	v.SetDefault("llhls.max_retained_segments", defaultMaxRetainedSegments)
	v.SetDefault("llhls.max_partials_per_segment", defaultMaxPartialsPerSeg)
	v.SetDefault("llhls.can_skip_until", 0.0)
	v.SetDefault("llhls.blocking_timeout", defaultBlockingTimeout)
	v.SetDefault("llhls.uri_template", "seg{segment}.{part}.{ext}")

	// Push defaults
	v.SetDefault("push.retry.attempts", defaultPushRetryAttempts)
	v.SetDefault("push.retry.delay", defaultPushRetryDelay)
	v.SetDefault("push.retry.max_delay", 10*time.Second)
	v.SetDefault("push.retry.backoff_multiplier", 2.0)
	v.SetDefault("push.retry.timeout", defaultHTTPPushTimeout)
	v.SetDefault("push.retry.circuit_threshold", defaultCircuitThreshold)
	v.SetDefault("push.retry.circuit_timeout", defaultCircuitTimeout)
	v.SetDefault("push.retry.aggregation_policy", "continue_on_failure")
	v.SetDefault("push.bandwidth.window_duration", defaultBandwidthWindow)
	v.SetDefault("push.bandwidth.required_bps", 0.0)
	v.SetDefault("push.bandwidth.alert_threshold", 0.8)
	v.SetDefault("push.bandwidth.critical_threshold", 0.5)
	v.SetDefault("push.bandwidth.minimum_samples", defaultMinimumSamples)

	// Session defaults
	v.SetDefault("session.retention_sweep_cron", defaultRetentionSweep)
	v.SetDefault("session.retention_age", defaultRetentionAge)
	v.SetDefault("session.work_dir", "./data/sessions")
	v.SetDefault("session.max_response_size", 64*1024*1024)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Packaging.SegmentTargetDuration <= 0 {
		return fmt.Errorf("packaging.segment_target_duration must be positive")
	}
	validContainers := map[string]bool{"fmp4": true, "mpegts": true}
	if !validContainers[c.Packaging.ContainerFormat] {
		return fmt.Errorf("packaging.container_format must be one of: fmp4, mpegts")
	}

	validMethods := map[string]bool{"NONE": true, "AES-128": true, "SAMPLE-AES": true, "SAMPLE-AES-CTR": true}
	if !validMethods[c.Encryption.Method] {
		return fmt.Errorf("encryption.method must be one of: NONE, AES-128, SAMPLE-AES, SAMPLE-AES-CTR")
	}

	if c.LLHLS.PartTargetDuration <= 0 {
		return fmt.Errorf("llhls.part_target_duration must be positive")
	}
	if c.LLHLS.MaxRetainedSegments < 1 {
		return fmt.Errorf("llhls.max_retained_segments must be at least 1")
	}

	validPolicies := map[string]bool{"continue_on_failure": true, "fail_on_primary": true, "require_all": true}
	if !validPolicies[c.Push.Retry.AggregationPolicy] {
		return fmt.Errorf("push.retry.aggregation_policy must be one of: continue_on_failure, fail_on_primary, require_all")
	}
	seenPrimary := false
	for _, d := range c.Push.Destinations {
		validTypes := map[string]bool{"http": true, "rtmp": true, "srt": true}
		if !validTypes[d.Type] {
			return fmt.Errorf("push.destinations[%s].type must be one of: http, rtmp, srt", d.ID)
		}
		if d.Primary {
			seenPrimary = true
		}
	}
	if c.Push.Retry.AggregationPolicy == "fail_on_primary" && !seenPrimary {
		return fmt.Errorf("push.retry.aggregation_policy is fail_on_primary but no push.destinations[] entry sets primary: true")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
