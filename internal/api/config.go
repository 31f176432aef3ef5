// Package api serves the live session over HTTP: session control, single-shot
// upload classification and a Server-Sent Events stream of rendered outputs.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHeartbeat       = 30 * time.Second
	DefaultClientBuffer    = 16

	// DefaultBodyLimit caps upload size; imagesrc applies its own limit too.
	DefaultBodyLimit = "32M"
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port to bind

	// WriteTimeout stays zero: SSE responses are long-lived.
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string

	// SSE
	Heartbeat    time.Duration // comment line interval keeping proxies open
	ClientBuffer int           // outputs buffered per client before dropping

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "localhost:8080",
		ReadTimeout:     DefaultReadTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		Heartbeat:       DefaultHeartbeat,
		ClientBuffer:    DefaultClientBuffer,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.HTTP.Listen != "" {
		cfg.Listen = settings.HTTP.Listen
	}
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.ClientBuffer < 1 {
		return fmt.Errorf("client buffer must be at least 1")
	}
	return nil
}
