// Package config provides the configuration structure for the voice clone service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultNATSURL              = "nats://127.0.0.1:4222"
	DefaultRequestSubject       = "voiceclone.generation.requested"
	DefaultOutcomeSubject       = "voiceclone.generation.completed"
	DefaultOutputBucket         = "VOICE_CLONE_OUTPUTS"
	DefaultInferenceServiceURL  = "http://127.0.0.1:8000"
	DefaultLanguage             = "en-us"
	DefaultFFmpegPath           = "ffmpeg"
	DefaultTranscodeTimeoutSecs = 30
	DefaultOutputPrefix         = "output"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL            string `toml:"url"`
	RequestSubject string `toml:"request_subject"`
	OutcomeSubject string `toml:"outcome_subject"`
	OutputBucket   string `toml:"output_bucket"`
}

// InferenceConfig locates the speech synthesis service.
type InferenceConfig struct {
	ServiceURL     string `toml:"service_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Language       string `toml:"language"`
}

// MediaConfig controls voice sample decoding.
type MediaConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	TempDir        string `toml:"temp_dir"`
}

// GenerationConfig controls where and how outputs are written.
type GenerationConfig struct {
	OutputPrefix string `toml:"output_prefix"`
	OutputDir    string `toml:"output_dir"`
	PresetsDir   string `toml:"presets_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir  string `toml:"base_logs_dir"`
	SettingsFile string `toml:"settings_file"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Inference  InferenceConfig  `toml:"inference"`
	Media      MediaConfig      `toml:"media"`
	Generation GenerationConfig `toml:"generation"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile reads a TOML configuration file directly.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills every empty field. Directories left empty stay empty
// so that user preferences can supply them later.
func (c *Config) ApplyDefaults() {
	setDefault(&c.NATS.URL, DefaultNATSURL)
	setDefault(&c.NATS.RequestSubject, DefaultRequestSubject)
	setDefault(&c.NATS.OutcomeSubject, DefaultOutcomeSubject)
	setDefault(&c.NATS.OutputBucket, DefaultOutputBucket)
	setDefault(&c.Inference.ServiceURL, DefaultInferenceServiceURL)
	setDefault(&c.Inference.Language, DefaultLanguage)
	setDefault(&c.Media.FFmpegPath, DefaultFFmpegPath)
	setDefault(&c.Generation.OutputPrefix, DefaultOutputPrefix)
	setDefault(&c.Paths.BaseLogsDir, os.TempDir())

	if c.Media.TimeoutSeconds <= 0 {
		c.Media.TimeoutSeconds = DefaultTranscodeTimeoutSecs
	}

	if c.Inference.TimeoutSeconds < 0 {
		c.Inference.TimeoutSeconds = 0
	}
}

// InferenceTimeout is the HTTP timeout for inference calls; zero means none.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}

// TranscodeTimeout bounds the fallback transcoder.
func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.Media.TimeoutSeconds) * time.Second
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
