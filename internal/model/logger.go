package model

import (
	"sync"

	"github.com/tphakala/livelabel/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the model package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("model")
	})
	return serviceLogger
}
