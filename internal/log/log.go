// Package log wraps a global sugared zap logger, in the style of a
// single package-level logger shared across a process.
package log

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var global atomic.Pointer[zap.SugaredLogger]

func init() {
	l, _ := zap.NewProduction()
	SetGlobalLogger(l.Sugar())
}

// SetGlobalLogger installs l as the package-level logger.
func SetGlobalLogger(l *zap.SugaredLogger) {
	global.Store(l)
}

// NewDevelopment builds a human-readable logger suitable for a CLI,
// in contrast to the JSON production logger installed by default.
func NewDevelopment() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// Configure installs the development (human-readable console) logger
// when development is true, or the default JSON production logger
// otherwise. Call it once, early in main.
func Configure(development bool) error {
	if !development {
		l, err := zap.NewProduction()
		if err != nil {
			return err
		}
		SetGlobalLogger(l.Sugar())
		return nil
	}
	l, err := NewDevelopment()
	if err != nil {
		return err
	}
	SetGlobalLogger(l.Sugar())
	return nil
}

func logger() *zap.SugaredLogger {
	return global.Load()
}

// Infof logs at info level.
func Infof(format string, args ...any) { logger().Infof(format, args...) }

// Info logs at info level.
func Info(args ...any) { logger().Info(args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...any) { logger().Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...any) { logger().Errorf(format, args...) }

// Debugf logs at debug level.
func Debugf(format string, args ...any) { logger().Debugf(format, args...) }

// Fatalf logs at fatal level and exits the process.
func Fatalf(format string, args ...any) { logger().Fatalf(format, args...) }
