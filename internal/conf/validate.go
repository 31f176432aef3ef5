package conf

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and normalises a few
// values in place.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateModelSettings,
		validateCaptureSettings,
		validateThemes,
		validateHTTPSettings,
		validateMQTTSettings,
		validateTelemetrySettings,
		validateSentrySettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateModelSettings(s *Settings) error {
	m := &s.Model
	var errs []string

	m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
	switch m.Backend {
	case "", "tflite", "onnx":
	default:
		errs = append(errs, fmt.Sprintf("model.backend must be tflite or onnx, got %q", m.Backend))
	}
	if m.Threads < 0 {
		errs = append(errs, "model.threads must not be negative")
	}
	if m.InputSize < 0 {
		errs = append(errs, "model.inputsize must not be negative")
	}
	if m.CacheTTL < 0 {
		errs = append(errs, "model.cachettl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("model settings errors: %v", errs)
	}
	return nil
}

func validateCaptureSettings(s *Settings) error {
	c := &s.Capture
	var errs []string

	if c.Width < 0 || c.Height < 0 {
		errs = append(errs, "capture.width and capture.height must not be negative")
	}
	if c.FrameStride < 1 {
		errs = append(errs, fmt.Sprintf("capture.framestride must be at least 1, got %d", c.FrameStride))
	}
	if c.RefreshRate <= 0 || c.RefreshRate > 240 {
		errs = append(errs, fmt.Sprintf("capture.refreshrate must be in (0, 240], got %g", c.RefreshRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("capture settings errors: %v", errs)
	}
	return nil
}

func validateThemes(s *Settings) error {
	for i, t := range s.Themes {
		if strings.TrimSpace(t.Match) == "" || strings.TrimSpace(t.Theme) == "" {
			return fmt.Errorf("themes[%d] needs both match and theme", i)
		}
	}
	return nil
}

func validateHTTPSettings(s *Settings) error {
	if !s.HTTP.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.HTTP.Listen); err != nil {
		return fmt.Errorf("http.listen %q is not host:port: %w", s.HTTP.Listen, err)
	}
	return nil
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if err := validateEnvBrokerURL(s.MQTT.Broker); err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	if strings.TrimSpace(s.MQTT.Topic) == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	if strings.ContainsAny(s.MQTT.Topic, "#+") {
		return fmt.Errorf("mqtt.topic must not contain wildcards")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if !s.Telemetry.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
		return fmt.Errorf("telemetry.listen %q is not host:port: %w", s.Telemetry.Listen, err)
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && strings.TrimSpace(s.Sentry.DSN) == "" {
		return fmt.Errorf("sentry.dsn is required when sentry is enabled")
	}
	return nil
}
