// Package slog wraps a single process-wide zap sugared logger for strata's
// internal packages. Row-local faults never log here (they become NULL or
// Execution errors per spec.md §7). The one caller is the timeline's append
// path, which logs each concurrent-write retry.
package slog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	log = l.Sugar()
}

// Set replaces the process-wide logger, for embedders that want their own
// zap configuration (e.g. development encoding in tests).
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l.Sugar()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debugw(msg string, kv ...any) { get().Debugw(msg, kv...) }
func Infow(msg string, kv ...any)  { get().Infow(msg, kv...) }
func Warnw(msg string, kv ...any)  { get().Warnw(msg, kv...) }
func Errorw(msg string, kv ...any) { get().Errorw(msg, kv...) }

// Sync flushes any buffered log entries; callers should defer it from
// DB.Close.
func Sync() error { return get().Sync() }
