package conf

import "github.com/tphakala/livelabel/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger on every call since the central logger is configured from settings
// loaded by this package.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
