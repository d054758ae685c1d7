// Package config loads sonido-mood settings from defaults, an optional YAML
// file, SONIDO_MOOD_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-mood/algorithms/tonal"
	"github.com/RyanBlaney/sonido-mood/logging"
	"github.com/RyanBlaney/sonido-mood/transcode"
)

const (
	EnvPrefix  = "SONIDO_MOOD"
	ConfigName = "sonido-mood"
)

// Isolation modes for batch workers
const (
	IsolationGoroutine = "goroutine"
	IsolationProcess   = "process"
)

// Output formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Settings is the complete runtime configuration
type Settings struct {
	Log      LogSettings      `mapstructure:"log"`
	Decoder  DecoderSettings  `mapstructure:"decoder"`
	Analysis AnalysisSettings `mapstructure:"analysis"`
	Batch    BatchSettings    `mapstructure:"batch"`
	Output   OutputSettings   `mapstructure:"output"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
}

type LogSettings struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

type DecoderSettings struct {
	Backend     string        `mapstructure:"backend"` // auto, ffmpeg, native
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
	Timeout     time.Duration `mapstructure:"timeout"` // 0 disables
}

type AnalysisSettings struct {
	KeyProfile string `mapstructure:"key_profile"` // krumhansl, temperley
}

type BatchSettings struct {
	Workers   int    `mapstructure:"workers"`   // 0 picks min(NumCPU, 4)
	Isolation string `mapstructure:"isolation"` // goroutine, process
	Progress  bool   `mapstructure:"progress"`
}

type OutputSettings struct {
	Format string `mapstructure:"format"` // json, yaml
}

type MetricsSettings struct {
	File string `mapstructure:"file"` // Prometheus textfile, empty disables
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("decoder.backend", string(transcode.BackendAuto))
	v.SetDefault("decoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("decoder.ffprobe_path", "ffprobe")
	v.SetDefault("decoder.timeout", time.Duration(0))

	v.SetDefault("analysis.key_profile", tonal.KeyProfileKrumhansl.String())

	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.isolation", IsolationGoroutine)
	v.SetDefault("batch.progress", false)

	v.SetDefault("output.format", FormatJSON)

	v.SetDefault("metrics.file", "")
}

// NewViper creates a viper instance with defaults and environment binding.
// Keys map to variables such as SONIDO_MOOD_BATCH_WORKERS.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultConfigPaths lists the directories searched for sonido-mood.yaml
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigName))
	}
	return append(paths, filepath.Join("/etc", ConfigName))
}

// Load reads the configuration into Settings. An explicit configFile must
// exist; without one the default paths are searched and a missing file is
// not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// Validate rejects unknown enum values and negative counts
func (s *Settings) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := transcode.ParseBackend(s.Decoder.Backend); err != nil {
		errs = append(errs, fmt.Errorf("decoder.backend: %w", err))
	}
	if s.Decoder.Timeout < 0 {
		errs = append(errs, fmt.Errorf("decoder.timeout must not be negative, got %s", s.Decoder.Timeout))
	}
	if _, err := tonal.ParseKeyProfile(s.Analysis.KeyProfile); err != nil {
		errs = append(errs, fmt.Errorf("analysis.key_profile: %w", err))
	}
	if s.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("batch.workers must not be negative, got %d", s.Batch.Workers))
	}
	switch s.Batch.Isolation {
	case IsolationGoroutine, IsolationProcess:
	default:
		errs = append(errs, fmt.Errorf("batch.isolation: unknown mode %q", s.Batch.Isolation))
	}
	switch s.Output.Format {
	case FormatJSON, FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("output.format: unknown format %q", s.Output.Format))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level, info if it does not parse
func (s *Settings) LogLevel() logging.Level {
	level, err := logging.ParseLevel(s.Log.Level)
	if err != nil {
		return logging.InfoLevel
	}
	return level
}

// KeyProfile returns the parsed key profile, Krumhansl if it does not parse
func (s *Settings) KeyProfile() tonal.KeyProfile {
	p, err := tonal.ParseKeyProfile(s.Analysis.KeyProfile)
	if err != nil {
		return tonal.KeyProfileKrumhansl
	}
	return p
}

// DecoderConfig builds the decoder configuration. Target rate, channels and
// duration are set per call by the analysis library.
func (s *Settings) DecoderConfig() *transcode.DecoderConfig {
	cfg := transcode.DefaultDecoderConfig()
	if backend, err := transcode.ParseBackend(s.Decoder.Backend); err == nil {
		cfg.Backend = backend
	}
	if s.Decoder.FFmpegPath != "" {
		cfg.FFmpegPath = s.Decoder.FFmpegPath
	}
	if s.Decoder.FFprobePath != "" {
		cfg.FFprobePath = s.Decoder.FFprobePath
	}
	cfg.Timeout = s.Decoder.Timeout
	return cfg
}
