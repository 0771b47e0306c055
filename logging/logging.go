package logging

/*
Process-wide logger.

The index itself never logs on expected error paths; statuses carry the
information back to the caller. The logger exists for unusual conditions
(a value buffer reported too small, heap blocks reclaimed) and for
the REPL binary. Libraries and tests run against the default nop logger
unless Init is called.
*/

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.Mutex
	log = zap.NewNop().Sugar()
)

// Init installs a real logger at the given level ("debug", "info",
// "warn", "error"). With console set, output is human-readable instead
// of JSON. Safe to call more than once; the last call wins.
func Init(level string, console bool) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	if console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	log = l.Sugar()
	mu.Unlock()
	return nil
}

// S returns the process logger.
func S() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return log
}
