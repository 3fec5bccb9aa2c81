package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envLogEncoding = "LOG_ENCODING"

var (
	once       sync.Once
	logger     *zap.SugaredLogger
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	syncLogger = func() error { return nil }
)

// Logger returns a lazily initialised structured logger.
func Logger() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.MessageKey = "msg"
		cfg.EncoderConfig.LevelKey = "level"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if strings.EqualFold(strings.TrimSpace(os.Getenv(envLogEncoding)), "console") {
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}

		base, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		logger = base.Sugar()
		syncLogger = base.Sync
	})

	return logger
}

// SetLevel adjusts the minimum level of the shared logger. An empty value is a no-op.
func SetLevel(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := zapcore.ParseLevel(value)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	level.SetLevel(parsed)
	return nil
}

// Or returns l when non-nil and the shared logger otherwise.
func Or(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return Logger()
}

// Sync flushes any buffered log entries.
func Sync() error {
	if err := syncLogger(); err != nil {
		if strings.Contains(err.Error(), "bad file descriptor") ||
			strings.Contains(err.Error(), "invalid argument") {
			return nil
		}
		return err
	}
	return nil
}
