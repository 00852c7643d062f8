// Package logger holds the process-wide zap logger.
package logger

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	mtx    sync.Mutex
)

// New builds a sugared logger at the given level ("debug", "info", ...).
// Development mode switches to the console encoder with caller stacks.
func New(level string, development bool) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	lg, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return lg.Sugar(), nil
}

// Set replaces the process logger.
func Set(s *zap.SugaredLogger) {
	mtx.Lock()
	defer mtx.Unlock()
	sugar = s
	logger = s.Desugar()
}

// Get returns the process logger, creating a development logger on first
// use.
func Get() *zap.SugaredLogger {
	mtx.Lock()
	defer mtx.Unlock()

	if logger == nil {
		lg, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		logger = lg
		sugar = lg.Sugar()
	}
	return sugar
}

// Sync flushes the process logger if one was created.
func Sync() {
	mtx.Lock()
	defer mtx.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
}
