// Package logging provides categorised logging for dcon on top of zap.
// Until Initialize or Use is called every logger is a no-op, so library
// packages can log unconditionally.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and shutdown
	CategoryConfig   Category = "config"   // Configuration loading
	CategoryTimeline Category = "timeline" // Position planning
	CategoryMarkup   Category = "markup"   // Markup rendering
	CategoryStore    Category = "store"    // SQLite store
	CategoryCLI      Category = "cli"      // Command execution
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	Format     string // json, console
	File       string
	Categories map[string]bool
}

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// New builds a zap logger from cfg without installing it.
func New(cfg Config) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "json") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
	}

	return zc.Build()
}

// Initialize builds a logger from cfg and installs it.
func Initialize(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	Use(l, cfg.Categories)
	Get(CategoryBoot).Debug("logging initialised: level=%s format=%s", cfg.Level, cfg.Format)
	return nil
}

// Use installs an existing zap logger. A nil enabled map enables every
// category; categories absent from a non-nil map are enabled too.
func Use(l *zap.Logger, enabled map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = enabled
	loggers = make(map[Category]*Logger)
}

// Base returns the installed zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	enabled := IsCategoryEnabled(category)

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if enabled {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Sync flushes buffered entries of the installed logger.
func Sync() {
	_ = Base().Sync()
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Markup logs to the markup category
func Markup(format string, args ...interface{}) {
	Get(CategoryMarkup).Info(format, args...)
}

// MarkupDebug logs debug to the markup category
func MarkupDebug(format string, args ...interface{}) {
	Get(CategoryMarkup).Debug(format, args...)
}

// Timer measures an operation and reports it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s slow: %v (threshold %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
