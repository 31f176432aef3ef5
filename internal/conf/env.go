package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIVELABEL_MODEL_REF.
const EnvPrefix = "LIVELABEL"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the validated environment variable bindings. Other
// keys are still overridable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "LIVELABEL_DEBUG", validateEnvBool},

		{"model.ref", "LIVELABEL_MODEL_REF", validateEnvModelRef},
		{"model.backend", "LIVELABEL_MODEL_BACKEND", validateEnvBackend},
		{"model.threads", "LIVELABEL_MODEL_THREADS", validateEnvNonNegativeInt},
		{"model.usexnnpack", "LIVELABEL_MODEL_USEXNNPACK", validateEnvBool},
		{"model.cachettl", "LIVELABEL_MODEL_CACHETTL", validateEnvDuration},

		{"capture.device", "LIVELABEL_CAPTURE_DEVICE", nil},
		{"capture.mirror", "LIVELABEL_CAPTURE_MIRROR", validateEnvBool},
		{"capture.framestride", "LIVELABEL_CAPTURE_FRAMESTRIDE", validateEnvPositiveInt},

		{"http.listen", "LIVELABEL_HTTP_LISTEN", validateEnvListen},
		{"mqtt.broker", "LIVELABEL_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "LIVELABEL_MQTT_USERNAME", nil},
		{"mqtt.password", "LIVELABEL_MQTT_PASSWORD", nil},
		{"telemetry.listen", "LIVELABEL_TELEMETRY_LISTEN", validateEnvListen},
		{"sentry.dsn", "LIVELABEL_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	return nil
}

func validateEnvBackend(value string) error {
	switch strings.ToLower(value) {
	case "tflite", "onnx":
		return nil
	}
	return fmt.Errorf("backend must be tflite or onnx")
}

func validateEnvModelRef(value string) error {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if _, err := url.Parse(value); err != nil {
			return fmt.Errorf("invalid model URL: %w", err)
		}
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("listen address must be host:port: %w", err)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		return nil
	}
	return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
}
