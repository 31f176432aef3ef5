package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Model:     ModelSettings{InputSize: 224},
		Capture:   CaptureSettings{FrameStride: 10, RefreshRate: 60},
		HTTP:      HTTPSettings{Enabled: true, Listen: "localhost:8080"},
		MQTT:      MQTTSettings{Broker: "tcp://localhost:1883", Topic: "livelabel/results"},
		Telemetry: TelemetrySettings{Listen: "0.0.0.0:8090"},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"unknown backend", func(s *Settings) { s.Model.Backend = "tfjs" }, "model.backend"},
		{"negative threads", func(s *Settings) { s.Model.Threads = -1 }, "model.threads"},
		{"zero stride", func(s *Settings) { s.Capture.FrameStride = 0 }, "capture.framestride"},
		{"zero refresh rate", func(s *Settings) { s.Capture.RefreshRate = 0 }, "capture.refreshrate"},
		{"empty theme", func(s *Settings) { s.Themes = []ThemeRule{{Match: "x"}} }, "themes[0]"},
		{"bad http listen", func(s *Settings) { s.HTTP.Listen = "8080" }, "http.listen"},
		{"disabled http ignores listen", func(s *Settings) { s.HTTP = HTTPSettings{Listen: "bad"} }, ""},
		{"mqtt bad scheme", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Broker = "http://broker" }, "mqtt.broker"},
		{"mqtt wildcard topic", func(s *Settings) { s.MQTT.Enabled = true; s.MQTT.Topic = "a/#" }, "wildcards"},
		{"telemetry bad listen", func(s *Settings) { s.Telemetry = TelemetrySettings{Enabled: true, Listen: "x"} }, "telemetry.listen"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateEnvBool("TRUE"))
	require.Error(t, validateEnvBool("yes"))
	require.NoError(t, validateEnvPositiveInt("1"))
	require.Error(t, validateEnvPositiveInt("0"))
	require.NoError(t, validateEnvNonNegativeInt("0"))
	require.NoError(t, validateEnvDuration("90s"))
	require.Error(t, validateEnvDuration("soon"))
	require.NoError(t, validateEnvBackend("ONNX"))
	require.Error(t, validateEnvBackend("tfjs"))
	require.NoError(t, validateEnvListen(":8080"))
	require.NoError(t, validateEnvBrokerURL("ssl://broker:8883"))
	require.Error(t, validateEnvBrokerURL("ftp://broker"))
}
