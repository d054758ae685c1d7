// Package app holds the runtime state shared by the CLI commands: settings,
// logger, standard streams and the factories for the analysis pipeline.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-mood/algorithms/tonal"
	"github.com/RyanBlaney/sonido-mood/audiolib"
	"github.com/RyanBlaney/sonido-mood/config"
	"github.com/RyanBlaney/sonido-mood/features"
	"github.com/RyanBlaney/sonido-mood/logging"
	"github.com/RyanBlaney/sonido-mood/metrics"
	"github.com/RyanBlaney/sonido-mood/transcode"
)

// App is created once per process and passed to every command
type App struct {
	Viper    *viper.Viper
	Settings *config.Settings
	Logger   logging.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	ConfigFile string
	Debug      bool
}

// New creates an App bound to the process streams
func New() *App {
	return &App{
		Viper:  config.NewViper(),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: &logging.NoOpLogger{},
	}
}

// Setup loads the settings and installs the global logger. Commands call it
// after flags are parsed.
func (a *App) Setup() error {
	settings, err := config.Load(a.Viper, a.ConfigFile)
	if err != nil {
		return err
	}
	a.Settings = settings

	var logger *logging.DefaultLogger
	if f, ok := a.Stderr.(*os.File); ok && f == os.Stderr {
		logger = logging.NewDefaultLogger()
	} else {
		logger = logging.NewWriterLogger(a.Stderr, false)
	}

	level := settings.LogLevel()
	if a.Debug {
		level = logging.DebugLevel
	}
	logger.SetLevel(level)
	logging.SetGlobalLogger(logger)

	a.Logger = logger.WithFields(logging.Fields{
		"component": "cli",
	})
	if used := a.Viper.ConfigFileUsed(); used != "" {
		a.Logger.Debug("Loaded configuration", logging.Fields{"file": used})
	}
	return nil
}

// Decoder builds the decoder selected by the settings
func (a *App) Decoder() *transcode.Decoder {
	return transcode.NewDecoder(a.Settings.DecoderConfig())
}

// CheckDependencies fails with features.ErrDependencyMissing when the
// decoder backend cannot run
func (a *App) CheckDependencies(decoder *transcode.Decoder) error {
	if err := decoder.ValidateConfig(); err != nil {
		return fmt.Errorf("%w: %v", features.ErrDependencyMissing, err)
	}
	a.Logger.Debug("Decoder ready", logging.Fields{
		"backend": decoder.Backend(),
		"formats": decoder.GetSupportedFormats(),
	})
	return nil
}

// Extractor builds a feature extractor over decoder
func (a *App) Extractor(decoder *transcode.Decoder) *features.Extractor {
	return features.NewExtractor(
		audiolib.New(decoder),
		features.WithKeyDetector(tonal.NewKeyDetectorForProfile(a.Settings.KeyProfile())),
		features.WithLogger(logging.GetGlobalLogger()),
	)
}

// Recorder returns a metrics recorder when a metrics file is configured
func (a *App) Recorder() (*metrics.Recorder, error) {
	if a.Settings.Metrics.File == "" {
		return nil, nil
	}
	return metrics.NewRecorder(nil)
}

// WriteMetrics writes rec to the configured file; failures are logged only
func (a *App) WriteMetrics(rec *metrics.Recorder) {
	if rec == nil {
		return
	}
	if err := rec.WriteTextfile(a.Settings.Metrics.File); err != nil {
		a.Logger.Error(err, "Failed to write metrics", logging.Fields{
			"file": a.Settings.Metrics.File,
		})
	}
}

// Emit writes v to stdout in the configured output format
func (a *App) Emit(v any) error {
	if a.Settings != nil && a.Settings.Output.Format == config.FormatYAML {
		enc := yaml.NewEncoder(a.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}

	if err := json.NewEncoder(a.Stdout).Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// WorkerArgs are the global flags a child analyze process needs to mirror
// this process's decoder and key settings
func (a *App) WorkerArgs() []string {
	args := []string{
		"--output", config.FormatJSON,
		"--metrics-file", "",
		"--decoder", a.Settings.Decoder.Backend,
	}
	if a.ConfigFile != "" {
		args = append(args, "--config", a.ConfigFile)
	}
	return args
}
