package session

import (
	"sync"

	"github.com/tphakala/livelabel/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the session package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("session")
	})
	return serviceLogger
}
