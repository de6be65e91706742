// Package config provides configuration management for vidplay using Viper.
// Values come from defaults, an optional YAML file and VIDPLAY_ environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "VIDPLAY"

// Default configuration values.
const (
	defaultServerPort      = 8090
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultAudioSoftLimit = 5 * 1024 * 1024
	defaultAudioHardLimit = 10 * 1024 * 1024
	defaultStallTimeout   = 30 * time.Second
	defaultPausePoll      = 10 * time.Millisecond
	defaultIdlePoll       = 100 * time.Millisecond
	defaultReadTimeout    = 30 * time.Second
	defaultInputBuffer    = 1024000
	defaultVideoTolerance = 50 * time.Millisecond
	defaultAudioTolerance = 100 * time.Millisecond
	defaultMaxPacingDelay = 500 * time.Millisecond
	defaultAudioChunk     = 4096
	defaultAudioPoll      = 20 * time.Millisecond
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Player  PlayerConfig  `mapstructure:"player"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP control plane configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AudioChunk is the read size used when streaming PCM to HTTP clients.
	AudioChunk ByteSize `mapstructure:"audio_chunk"`
	// AudioPoll is how long the PCM stream waits when the buffer is empty.
	AudioPoll time.Duration `mapstructure:"audio_poll"`
	// CORSOrigins restricts browser access; empty allows any origin.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
	// FFmpegLevel is the verbosity of libav's own log output.
	FFmpegLevel string `mapstructure:"ffmpeg_level"`
}

// PlayerConfig holds the decode engine tunables.
type PlayerConfig struct {
	// AudioSoftLimit stops resampling new audio while the buffer holds more.
	AudioSoftLimit ByteSize `mapstructure:"audio_soft_limit"`
	// AudioHardLimit is the ceiling the audio buffer never grows past.
	AudioHardLimit ByteSize `mapstructure:"audio_hard_limit"`
	// StallTimeout aborts reads when no packet arrived for this long.
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
	PausePoll    time.Duration `mapstructure:"pause_poll"`
	IdlePoll     time.Duration `mapstructure:"idle_poll"`
	// ReadTimeout is passed to FFmpeg as rw_timeout and stimeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// InputBuffer is passed to FFmpeg as buffer_size.
	InputBuffer    ByteSize      `mapstructure:"input_buffer"`
	VideoTolerance time.Duration `mapstructure:"video_tolerance"`
	AudioTolerance time.Duration `mapstructure:"audio_tolerance"`
	MaxPacingDelay time.Duration `mapstructure:"max_pacing_delay"`
	TargetWidth    int           `mapstructure:"target_width"`
	TargetHeight   int           `mapstructure:"target_height"`
	// InputOptions are extra demuxer options, e.g. rtsp_transport: tcp.
	InputOptions map[string]string `mapstructure:"input_options"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Example: VIDPLAY_PLAYER_STALL_TIMEOUT=45s.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vidplay")
		v.AddConfigPath("$HOME/.vidplay")
	}
	BindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// BindEnv wires VIDPLAY_ prefixed environment variables into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Unmarshal decodes and validates the configuration held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	// Zero keeps the PCM stream open indefinitely.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.audio_chunk", defaultAudioChunk)
	v.SetDefault("server.audio_poll", defaultAudioPoll)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.ffmpeg_level", "error")

	v.SetDefault("player.audio_soft_limit", defaultAudioSoftLimit)
	v.SetDefault("player.audio_hard_limit", defaultAudioHardLimit)
	v.SetDefault("player.stall_timeout", defaultStallTimeout)
	v.SetDefault("player.pause_poll", defaultPausePoll)
	v.SetDefault("player.idle_poll", defaultIdlePoll)
	v.SetDefault("player.read_timeout", defaultReadTimeout)
	v.SetDefault("player.input_buffer", defaultInputBuffer)
	v.SetDefault("player.video_tolerance", defaultVideoTolerance)
	v.SetDefault("player.audio_tolerance", defaultAudioTolerance)
	v.SetDefault("player.max_pacing_delay", defaultMaxPacingDelay)
	v.SetDefault("player.target_width", 0)
	v.SetDefault("player.target_height", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.AudioChunk < 4 {
		return errors.New("server.audio_chunk must be at least 4 bytes")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return errors.New("logging.format must be one of: json, text")
	}
	validFFmpegLevels := map[string]bool{"quiet": true, "error": true, "warning": true, "info": true, "verbose": true, "debug": true}
	if !validFFmpegLevels[c.Logging.FFmpegLevel] {
		return errors.New("logging.ffmpeg_level must be one of: quiet, error, warning, info, verbose, debug")
	}

	return c.Player.Validate()
}

// Validate checks the player section.
func (p *PlayerConfig) Validate() error {
	if p.AudioHardLimit <= 0 {
		return errors.New("player.audio_hard_limit must be positive")
	}
	if p.AudioSoftLimit <= 0 || p.AudioSoftLimit > p.AudioHardLimit {
		return fmt.Errorf("player.audio_soft_limit must be positive and not exceed audio_hard_limit (%s)", p.AudioHardLimit)
	}
	if p.StallTimeout <= 0 {
		return errors.New("player.stall_timeout must be positive")
	}
	if p.PausePoll <= 0 || p.IdlePoll <= 0 {
		return errors.New("player.pause_poll and player.idle_poll must be positive")
	}
	if p.TargetWidth < 0 || p.TargetHeight < 0 {
		return errors.New("player.target_width and player.target_height must not be negative")
	}
	if p.VideoTolerance < 0 || p.AudioTolerance < 0 {
		return errors.New("player tolerances must not be negative")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
