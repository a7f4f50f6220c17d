// Package logging provides config-driven categorized file-based logging for
// Titan. Logs are written to <data_dir>/logs/ with separate files per
// category. When debug mode is off, logging is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and initialization
	CategoryChat     Category = "chat"     // Conversation loop rounds
	CategoryIntent   Category = "intent"   // Intent classification
	CategoryTools    Category = "tools"    // Tool execution
	CategoryLLM      Category = "llm"      // Provider API calls
	CategoryStore    Category = "store"    // SQLite store operations
	CategorySafety   Category = "safety"   // Gating, sanitization, redaction
	CategoryEvents   Category = "events"   // Progress event emission
	CategoryDeferred Category = "deferred" // Deferred write stage
	CategoryAPI      Category = "api"      // HTTP surface
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex

	configMu  sync.RWMutex
	logsDir   string
	debugMode bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at startup.
// With debug false this is a silent no-op and all loggers discard.
func Initialize(dataDir string, debug bool, level string) error {
	configMu.Lock()
	debugMode = debug
	switch level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	configMu.Unlock()

	if !debug {
		return nil
	}
	if dataDir == "" {
		return fmt.Errorf("data dir required")
	}

	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	configMu.Lock()
	logsDir = dir
	configMu.Unlock()

	boot := Get(CategoryBoot)
	boot.Info("=== Titan logging initialized ===")
	boot.Info("Logs directory: %s", dir)
	boot.Info("Log level: %s", level)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return debugMode
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when debug mode is disabled.
func Get(category Category) *Logger {
	configMu.RLock()
	enabled := debugMode && logsDir != ""
	dir := logsDir
	configMu.RUnlock()

	if !enabled {
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
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always written if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

func currentLevel() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return logLevel
}

// Close flushes and closes all open log files. Call on shutdown.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for cat, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
		delete(loggers, cat)
	}
}

// Convenience wrappers, one pair per busy category.

func Chat(format string, args ...interface{})       { Get(CategoryChat).Info(format, args...) }
func ChatDebug(format string, args ...interface{})  { Get(CategoryChat).Debug(format, args...) }
func Intent(format string, args ...interface{})     { Get(CategoryIntent).Info(format, args...) }
func Tools(format string, args ...interface{})      { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func LLM(format string, args ...interface{})        { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{})   { Get(CategoryLLM).Debug(format, args...) }
func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func Safety(format string, args ...interface{})     { Get(CategorySafety).Info(format, args...) }
func Events(format string, args ...interface{})     { Get(CategoryEvents).Debug(format, args...) }
func Deferred(format string, args ...interface{})   { Get(CategoryDeferred).Info(format, args...) }
func API(format string, args ...interface{})        { Get(CategoryAPI).Info(format, args...) }
