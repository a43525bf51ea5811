package internal

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *SecureLogger
	logRotator   *lumberjack.Logger
	loggerMutex  sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration
func InitLogger(config *Config) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	level := parseLogLevel(config.Log.Level)

	var output io.Writer = os.Stderr
	format := config.Log.Format
	if config.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.Log.File), 0755); err != nil {
			return NewValidationError("log.file", "failed to create log directory").
				WithSuggestion("Check file permissions and path validity").
				WithContext("file", config.Log.File).
				WithContext("error", err.Error())
		}
		maxSize := config.Log.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		if logRotator != nil {
			logRotator.Close()
		}
		logRotator = &lumberjack.Logger{
			Filename:   config.Log.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     28,
			LocalTime:  true,
		}
		output = logRotator
	}

	globalLogger = NewSecureLoggerWithFormat(output, format, level, config.Log.Debug, config.Log.Quiet)
	for _, cred := range config.Credentials() {
		globalLogger.AddRedactor(&SecretRedactor{Secret: cred.Token})
	}

	return nil
}

// CloseLogger flushes and closes the log file, if any
func CloseLogger() error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if logRotator == nil {
		return nil
	}
	err := logRotator.Close()
	logRotator = nil
	return err
}

// GetLogger returns the global logger instance
func GetLogger() *SecureLogger {
	loggerMutex.RLock()
	l := globalLogger
	loggerMutex.RUnlock()
	if l != nil {
		return l
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger(false, false)
	}
	return globalLogger
}

// SetLogger replaces the global logger
func SetLogger(l *SecureLogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = l
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogError logs an error message using the global logger
func LogError(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// LogWarn logs a warning message using the global logger
func LogWarn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// LogInfo logs an info message using the global logger
func LogInfo(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// LogDebug logs a debug message using the global logger
func LogDebug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// LogProviderError logs a ProviderError at the level matching its severity
func LogProviderError(err *ProviderError) {
	logger := GetLogger()

	switch err.Severity {
	case SeverityCritical:
		logger.Error("CRITICAL: %s", err.DetailedError())
	case SeverityWarning:
		logger.Warn("%s", err.DetailedError())
	case SeverityInfo:
		logger.Info("%s", err.DetailedError())
	default:
		logger.Error("%s", err.DetailedError())
	}
}

// LogValidationError logs a ValidationError
func LogValidationError(err *ValidationError) {
	GetLogger().Error("Validation Error: %s", err.DetailedError())
}
