package api

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	gommonlog "github.com/labstack/gommon/log"

	"github.com/tphakala/livelabel/internal/logger"
)

// echoLogger routes echo's own log calls into the module logger, so panics
// recovered by echo and listener errors end up next to the request logs.
// Output, prefix and header settings are ignored.
type echoLogger struct {
	log   logger.Logger
	level atomic.Uint32
}

var _ echo.Logger = (*echoLogger)(nil)

func newEchoLogger(l logger.Logger) *echoLogger {
	e := &echoLogger{log: l}
	e.level.Store(uint32(gommonlog.INFO))
	return e
}

func (e *echoLogger) Output() io.Writer { return io.Discard }
func (e *echoLogger) SetOutput(io.Writer) {}
func (e *echoLogger) Prefix() string { return "" }
func (e *echoLogger) SetPrefix(string) {}
func (e *echoLogger) SetHeader(string) {}
func (e *echoLogger) Level() gommonlog.Lvl { return gommonlog.Lvl(e.level.Load()) }
func (e *echoLogger) SetLevel(l gommonlog.Lvl) { e.level.Store(uint32(l)) }

func (e *echoLogger) write(lvl gommonlog.Lvl, msg string, fields ...logger.Field) {
	if lvl < e.Level() {
		return
	}
	switch lvl {
	case gommonlog.DEBUG:
		e.log.Debug(msg, fields...)
	case gommonlog.WARN:
		e.log.Warn(msg, fields...)
	case gommonlog.ERROR:
		e.log.Error(msg, fields...)
	default:
		e.log.Info(msg, fields...)
	}
}

func (e *echoLogger) Print(i ...any) { e.write(gommonlog.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Printf(format string, a ...any) { e.write(gommonlog.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Printj(j gommonlog.JSON) { e.write(gommonlog.INFO, "echo", logger.Any("data", j)) }

func (e *echoLogger) Debug(i ...any) { e.write(gommonlog.DEBUG, fmt.Sprint(i...)) }
func (e *echoLogger) Debugf(format string, a ...any) { e.write(gommonlog.DEBUG, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Debugj(j gommonlog.JSON) { e.write(gommonlog.DEBUG, "echo", logger.Any("data", j)) }

func (e *echoLogger) Info(i ...any) { e.write(gommonlog.INFO, fmt.Sprint(i...)) }
func (e *echoLogger) Infof(format string, a ...any) { e.write(gommonlog.INFO, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Infoj(j gommonlog.JSON) { e.write(gommonlog.INFO, "echo", logger.Any("data", j)) }

func (e *echoLogger) Warn(i ...any) { e.write(gommonlog.WARN, fmt.Sprint(i...)) }
func (e *echoLogger) Warnf(format string, a ...any) { e.write(gommonlog.WARN, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Warnj(j gommonlog.JSON) { e.write(gommonlog.WARN, "echo", logger.Any("data", j)) }

func (e *echoLogger) Error(i ...any) { e.write(gommonlog.ERROR, fmt.Sprint(i...)) }
func (e *echoLogger) Errorf(format string, a ...any) { e.write(gommonlog.ERROR, fmt.Sprintf(format, a...)) }
func (e *echoLogger) Errorj(j gommonlog.JSON) { e.write(gommonlog.ERROR, "echo", logger.Any("data", j)) }

// Fatal and Panic log at error level and panic; echo's Recover middleware or
// the caller decides what happens next.
func (e *echoLogger) Fatal(i ...any) { e.Panic(i...) }
func (e *echoLogger) Fatalf(format string, a ...any) { e.Panicf(format, a...) }
func (e *echoLogger) Fatalj(j gommonlog.JSON) { e.Panicj(j) }

func (e *echoLogger) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	e.log.Error(msg)
	panic(msg)
}

func (e *echoLogger) Panicf(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	e.log.Error(msg)
	panic(msg)
}

func (e *echoLogger) Panicj(j gommonlog.JSON) {
	e.log.Error("echo", logger.Any("data", j))
	panic(fmt.Sprintf("%v", j))
}
