// Package logger holds the process-wide zap logger. Packages take a child via WithModule
// instead of threading a logger through every constructor.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Options controls how Init builds the logger.
type Options struct {
	// Level is a zap level name. Unknown or empty values mean info.
	Level string
	// Development switches to the console encoder with caller and stack details.
	Development bool
}

// Init builds a logger from opts and installs it globally.
func Init(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(opts.Level))

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	Replace(built)
	return nil
}

func parseLevel(name string) zapcore.Level {
	level, err := zapcore.ParseLevel(strings.TrimSpace(name))
	if err != nil || strings.TrimSpace(name) == "" {
		return zapcore.InfoLevel
	}
	return level
}

// Replace installs l as the global logger; nil installs a no-op logger. Tests use it
// with an observer core.
func Replace(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// Logger returns the global logger.
func Logger() *zap.Logger {
	return global.Load()
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger().Sync()
}

// WithModule returns a child logger tagged with module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}
