package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates a test from the global viper instance and any config
// file in the working directory or home.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadExplicitConfigFile(t *testing.T) {
	resetViper(t)

	viper.SetConfigFile(writeConfig(t, `
model:
  ref: https://teachablemachine.withgoogle.com/models/abc123/
  backend: TFLite
  cachettl: 2m
capture:
  mirror: false
  framestride: 5
themes:
  - match: cat
    theme: pet
mqtt:
  enabled: true
  topic: desk/state
`))

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://teachablemachine.withgoogle.com/models/abc123/", s.Model.Ref)
	assert.Equal(t, "tflite", s.Model.Backend, "backend is normalised")
	assert.Equal(t, 2*time.Minute, s.Model.CacheTTL)
	assert.Equal(t, 224, s.Model.InputSize)
	assert.False(t, s.Capture.Mirror)
	assert.Equal(t, 5, s.Capture.FrameStride)
	assert.InDelta(t, 60.0, s.Capture.RefreshRate, 0)
	assert.Equal(t, []ThemeRule{{Match: "cat", Theme: "pet"}}, s.Themes)
	assert.True(t, s.MQTT.Enabled)
	assert.Equal(t, "desk/state", s.MQTT.Topic)
	assert.Equal(t, "tcp://localhost:1883", s.MQTT.Broker)
	assert.Same(t, s, GetSettings())
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	resetViper(t)

	s, err := Load()
	require.NoError(t, err)

	userDir, err := UserConfigDir()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(userDir, "config.yaml"))

	assert.True(t, s.Capture.Mirror)
	assert.Equal(t, 224, s.Capture.Width)
	assert.Equal(t, 10, s.Capture.FrameStride)
	assert.Equal(t, []ThemeRule{{"messy", "messy"}, {"clean", "clean"}}, s.Themes)
	assert.Equal(t, 10*time.Minute, s.Model.CacheTTL)

	path, err := FindConfigFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(userDir, "config.yaml"), path)
}

func TestEnvironmentOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("LIVELABEL_MODEL_REF", "/srv/models/desk")
	t.Setenv("LIVELABEL_CAPTURE_FRAMESTRIDE", "3")
	t.Setenv("LIVELABEL_MQTT_TOPIC", "from/env")
	t.Setenv("LIVELABEL_DEBUG", "true")

	viper.SetConfigFile(writeConfig(t, "model:\n  ref: ignored\n"))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/models/desk", s.Model.Ref)
	assert.Equal(t, 3, s.Capture.FrameStride)
	assert.Equal(t, "from/env", s.MQTT.Topic)
	assert.True(t, s.Debug)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	resetViper(t)
	viper.SetConfigFile(writeConfig(t, "capture:\n  framestride: 0\n"))

	_, err := Load()
	require.Error(t, err)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 1)
}

func TestSaveYAMLConfig(t *testing.T) {
	resetViper(t)

	path := writeConfig(t, "")
	in := &Settings{
		Model:   ModelSettings{Ref: "https://example.com/m/", InputSize: 224},
		Capture: CaptureSettings{FrameStride: 4, RefreshRate: 30, Mirror: true},
		Themes:  []ThemeRule{{Match: "dog", Theme: "pet"}},
	}
	require.NoError(t, SaveYAMLConfig(path, in))

	viper.SetConfigFile(path)
	out, err := Load()
	require.NoError(t, err)
	assert.Equal(t, in.Model.Ref, out.Model.Ref)
	assert.Equal(t, 4, out.Capture.FrameStride)
	assert.Equal(t, in.Themes, out.Themes)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is cleaned up")
}

func TestLoggerConfig(t *testing.T) {
	s := &Settings{Logging: LoggingSettings{Level: "warn", File: "logs/app.log"}}

	cfg := s.LoggerConfig()
	assert.Equal(t, "warn", cfg.DefaultLevel)
	require.NotNil(t, cfg.FileOutput)
	assert.True(t, cfg.FileOutput.Enabled)
	assert.Equal(t, "logs/app.log", cfg.FileOutput.Path)

	s.Debug = true
	s.Logging.File = ""
	cfg = s.LoggerConfig()
	assert.Equal(t, "debug", cfg.Console.Level)
	assert.Nil(t, cfg.FileOutput)
}

func TestThemePairs(t *testing.T) {
	s := &Settings{Themes: []ThemeRule{{"a", "x"}, {"b", "y"}}}
	assert.Equal(t, []map[string]string{{"match": "a", "theme": "x"}, {"match": "b", "theme": "y"}}, s.ThemePairs())
}
