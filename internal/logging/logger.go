// Package logging provides categorized file-based debug logging for LitAssist.
// Logs are written to .litassist/logs/ with separate files per category.
// Logging is controlled by LITASSIST_DEBUG - when unset, no logs are written.
// This is the developer-facing debug stream; the legally significant record
// lives in the audit package.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryGateway  Category = "gateway"  // LLM API calls, retries, parameter filtering
	CategoryCitation Category = "citation" // Citation extraction, verification, cache
	CategoryFetch    Category = "fetch"    // Web fetching, PDF extraction, pacing
	CategoryVerify   Category = "verify"   // Verification chain, CoVe stages
	CategoryTruncate Category = "truncate" // Drop-largest truncation decisions
	CategoryAudit    Category = "audit"    // Audit log writer internals
	CategoryPrompt   Category = "prompt"   // Prompt registry lookups
	CategoryConfig   Category = "config"   // Settings loading and validation
)

// loggingConfig holds the env-derived logging settings.
// Config-file discovery belongs to the caller; env vars are the only
// source of truth here so tests and library embedders need no files.
type loggingConfig struct {
	DebugMode  bool
	Categories map[string]bool
	Level      string
	JSONFormat bool
}

// Logger wraps a category-bound zap logger writing to its own file.
type Logger struct {
	category Category
	zl       *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  zapcore.Level
)

// Initialize sets up the logging directory and reads the env configuration.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".litassist", "logs")

	loadEnvConfig()

	// Only create the logs directory if debug mode is enabled
	if !config.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryConfig)
	boot.Info("=== LitAssist logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Level: %s", config.Level)
	if len(config.Categories) > 0 {
		boot.Info("Category filter: %v", config.Categories)
	}

	return nil
}

// loadEnvConfig parses LITASSIST_DEBUG / LITASSIST_LOG_LEVEL / LITASSIST_LOG_JSON.
// LITASSIST_DEBUG accepts "1", "all", or a comma-separated category list.
func loadEnvConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	config = loggingConfig{}

	debug := strings.TrimSpace(os.Getenv("LITASSIST_DEBUG"))
	switch debug {
	case "":
		config.DebugMode = false
	case "1", "all", "true":
		config.DebugMode = true
	default:
		config.DebugMode = true
		config.Categories = make(map[string]bool)
		for _, cat := range strings.Split(debug, ",") {
			cat = strings.TrimSpace(cat)
			if cat != "" {
				config.Categories[cat] = true
			}
		}
	}

	config.Level = strings.ToLower(strings.TrimSpace(os.Getenv("LITASSIST_LOG_LEVEL")))
	switch config.Level {
	case "debug":
		logLevel = zapcore.DebugLevel
	case "warn", "warning":
		logLevel = zapcore.WarnLevel
	case "error":
		logLevel = zapcore.ErrorLevel
	case "info":
		logLevel = zapcore.InfoLevel
	default:
		config.Level = "debug"
		logLevel = zapcore.DebugLevel
	}

	config.JSONFormat = os.Getenv("LITASSIST_LOG_JSON") == "1"
}

// ReloadConfig re-reads the env configuration and drops cached loggers so
// new settings take effect. Intended for tests.
func ReloadConfig() {
	CloseAll()
	loadEnvConfig()
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	return config.Categories[string(category)]
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is
// filtered out.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category, zl: newCategoryZap(category)}
	loggers[category] = l
	return l
}

// newCategoryZap builds a zap logger writing to a date-prefixed,
// size-rotated file for one category.
func newCategoryZap(category Category) *zap.SugaredLogger {
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if config.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, sink, logLevel)
	return zap.New(core).Named(string(category)).Sugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.zl == nil {
		return
	}
	l.zl.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.zl == nil {
		return
	}
	l.zl.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.zl == nil {
		return
	}
	l.zl.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.zl == nil {
		return
	}
	l.zl.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.zl == nil {
		return l
	}
	return &Logger{category: l.category, zl: l.zl.With(keysAndValues...)}
}

// CloseAll flushes and drops all cached loggers (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.zl != nil {
			_ = l.zl.Sync()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Gateway logs to the gateway category
func Gateway(format string, args ...interface{}) {
	Get(CategoryGateway).Info(format, args...)
}

// GatewayDebug logs debug to the gateway category
func GatewayDebug(format string, args ...interface{}) {
	Get(CategoryGateway).Debug(format, args...)
}

// GatewayWarn logs warning to the gateway category
func GatewayWarn(format string, args ...interface{}) {
	Get(CategoryGateway).Warn(format, args...)
}

// GatewayError logs error to the gateway category
func GatewayError(format string, args ...interface{}) {
	Get(CategoryGateway).Error(format, args...)
}

// Citation logs to the citation category
func Citation(format string, args ...interface{}) {
	Get(CategoryCitation).Info(format, args...)
}

// CitationDebug logs debug to the citation category
func CitationDebug(format string, args ...interface{}) {
	Get(CategoryCitation).Debug(format, args...)
}

// CitationWarn logs warning to the citation category
func CitationWarn(format string, args ...interface{}) {
	Get(CategoryCitation).Warn(format, args...)
}

// CitationError logs error to the citation category
func CitationError(format string, args ...interface{}) {
	Get(CategoryCitation).Error(format, args...)
}

// Fetch logs to the fetch category
func Fetch(format string, args ...interface{}) {
	Get(CategoryFetch).Info(format, args...)
}

// FetchDebug logs debug to the fetch category
func FetchDebug(format string, args ...interface{}) {
	Get(CategoryFetch).Debug(format, args...)
}

// FetchWarn logs warning to the fetch category
func FetchWarn(format string, args ...interface{}) {
	Get(CategoryFetch).Warn(format, args...)
}

// FetchError logs error to the fetch category
func FetchError(format string, args ...interface{}) {
	Get(CategoryFetch).Error(format, args...)
}

// Verify logs to the verify category
func Verify(format string, args ...interface{}) {
	Get(CategoryVerify).Info(format, args...)
}

// VerifyDebug logs debug to the verify category
func VerifyDebug(format string, args ...interface{}) {
	Get(CategoryVerify).Debug(format, args...)
}

// VerifyWarn logs warning to the verify category
func VerifyWarn(format string, args ...interface{}) {
	Get(CategoryVerify).Warn(format, args...)
}

// VerifyError logs error to the verify category
func VerifyError(format string, args ...interface{}) {
	Get(CategoryVerify).Error(format, args...)
}

// Truncate logs to the truncate category
func Truncate(format string, args ...interface{}) {
	Get(CategoryTruncate).Info(format, args...)
}

// TruncateDebug logs debug to the truncate category
func TruncateDebug(format string, args ...interface{}) {
	Get(CategoryTruncate).Debug(format, args...)
}

// Audit logs to the audit category
func Audit(format string, args ...interface{}) {
	Get(CategoryAudit).Info(format, args...)
}

// AuditDebug logs debug to the audit category
func AuditDebug(format string, args ...interface{}) {
	Get(CategoryAudit).Debug(format, args...)
}

// AuditWarn logs warning to the audit category
func AuditWarn(format string, args ...interface{}) {
	Get(CategoryAudit).Warn(format, args...)
}

// AuditError logs error to the audit category
func AuditError(format string, args ...interface{}) {
	Get(CategoryAudit).Error(format, args...)
}

// Prompt logs to the prompt category
func Prompt(format string, args ...interface{}) {
	Get(CategoryPrompt).Info(format, args...)
}

// PromptDebug logs debug to the prompt category
func PromptDebug(format string, args ...interface{}) {
	Get(CategoryPrompt).Debug(format, args...)
}

// PromptWarn logs warning to the prompt category
func PromptWarn(format string, args ...interface{}) {
	Get(CategoryPrompt).Warn(format, args...)
}

// Config logs to the config category
func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// ConfigDebug logs debug to the config category
func ConfigDebug(format string, args ...interface{}) {
	Get(CategoryConfig).Debug(format, args...)
}

// ConfigError logs error to the config category
func ConfigError(format string, args ...interface{}) {
	Get(CategoryConfig).Error(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
