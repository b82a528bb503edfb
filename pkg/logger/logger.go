package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the global logger at the requested level. Unknown level
// strings fall back to info. Debug level switches to the development
// encoder for readable local output.
func Init(levelName string) error {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(levelName)); err != nil {
		parsed = zapcore.InfoLevel
	}
	level.SetLevel(parsed)

	cfg := zap.NewProductionConfig()
	if parsed == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = built
	mu.Unlock()
	return nil
}

// SetLevel adjusts the level of the already-built logger at runtime.
func SetLevel(levelName string) {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(levelName)); err != nil {
		return
	}
	level.SetLevel(parsed)
}

// Logger returns the process-wide logger. Safe to call before Init; a
// nop logger is returned until configuration happens.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithModule annotates a child logger with the owning module name.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Sync flushes buffered entries. Called on shutdown.
func Sync() error {
	return Logger().Sync()
}
