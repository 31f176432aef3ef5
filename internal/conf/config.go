// Package conf loads livelabel settings from config.yaml, environment
// variables and command line flags.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/livelabel/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// ModelSettings selects and tunes the classification model.
type ModelSettings struct {
	Ref         string        `yaml:"ref"`         // base URL or local path of the exported model
	Backend     string        `yaml:"backend"`     // tflite or onnx; empty infers from the artifact
	Threads     int           `yaml:"threads"`     // inference threads, 0 for auto
	UseXNNPACK  bool          `yaml:"usexnnpack"`  // enable the XNNPACK delegate for tflite
	InputSize   int           `yaml:"inputsize"`   // square model input size in pixels
	CacheTTL    time.Duration `yaml:"cachettl"`    // how long downloaded artifacts stay cached
	ONNXLibrary string        `yaml:"onnxlibrary"` // path to the onnxruntime shared library
}

// CaptureSettings configures the webcam and the frame loop.
type CaptureSettings struct {
	Device      string  `yaml:"device"`      // camera index or stream URL
	Width       int     `yaml:"width"`       // requested frame width
	Height      int     `yaml:"height"`      // requested frame height
	Mirror      bool    `yaml:"mirror"`      // flip frames horizontally
	FrameStride int     `yaml:"framestride"` // classify every Nth frame
	RefreshRate float64 `yaml:"refreshrate"` // frame loop ticks per second
}

// ThemeRule maps labels containing Match to Theme.
type ThemeRule struct {
	Match string `yaml:"match"`
	Theme string `yaml:"theme"`
}

// LoggingSettings configures the central logger.
type LoggingSettings struct {
	Level        string            `yaml:"level"`        // trace, debug, info, warn or error
	File         string            `yaml:"file"`         // optional JSON log file
	NoColor      bool              `yaml:"nocolor"`      // disable coloured console output
	ModuleLevels map[string]string `yaml:"modulelevels"` // per-module level overrides
}

// HTTPSettings configures the web API.
type HTTPSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// MQTTSettings configures result publishing.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"clientid"`
	Retain   bool   `yaml:"retain"`
}

// TelemetrySettings configures the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings is the full application configuration.
type Settings struct {
	Debug     bool              `yaml:"debug"`
	Model     ModelSettings     `yaml:"model"`
	Capture   CaptureSettings   `yaml:"capture"`
	Themes    []ThemeRule       `yaml:"themes"`
	Logging   LoggingSettings   `yaml:"logging"`
	HTTP      HTTPSettings      `yaml:"http"`
	MQTT      MQTTSettings      `yaml:"mqtt"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
	Sentry    SentrySettings    `yaml:"sentry"`
}

// ThemePairs returns the theme rules as ordered match/theme pairs.
func (s *Settings) ThemePairs() []map[string]string {
	pairs := make([]map[string]string, 0, len(s.Themes))
	for _, t := range s.Themes {
		pairs = append(pairs, map[string]string{"match": t.Match, "theme": t.Theme})
	}
	return pairs
}

// LoggerConfig converts the logging settings for logger.NewCentralLogger.
func (s *Settings) LoggerConfig() *logger.LoggingConfig {
	level := s.Logging.Level
	if s.Debug {
		level = "debug"
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Console: &logger.ConsoleOutput{
			Enabled: true,
			Level:   level,
			NoColor: s.Logging.NoColor,
		},
		ModuleLevels: s.Logging.ModuleLevels,
	}
	if s.Logging.File != "" {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    s.Logging.File,
			Level:   level,
		}
	}
	return cfg
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings and makes it the current instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings and reads the
// configuration file, creating one from the embedded template if none exists.
func initViper() error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	// An explicitly set config file (--config) skips the search.
	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// createDefaultConfig writes the embedded config template to the first
// default config path and reads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded config.yaml template.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings, loading them on first use.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				GetLogger().Error("error loading settings", logger.Error(err))
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig writes settings to configPath, replacing the file atomically.
// Comments in an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
