package internal

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// frames between the zerolog event and the code that called Info/Warn/...
const callerSkip = 2

// SecureLogger is a zerolog logger that redacts tokens before anything is
// written.
type SecureLogger struct {
	zl        zerolog.Logger
	level     LogLevel
	debug     bool
	quiet     bool
	redactors []Redactor
}

// Redactor defines an interface for redacting sensitive information
type Redactor interface {
	Redact(input string) string
}

// redactAfter replaces every value that follows marker (case-insensitive)
// up to the first byte for which stop returns true.
func redactAfter(input, marker string, stop func(byte) bool) string {
	lowerMarker := strings.ToLower(marker)
	result := input
	offset := 0
	for {
		idx := strings.Index(strings.ToLower(result[offset:]), lowerMarker)
		if idx < 0 {
			return result
		}
		start := offset + idx + len(marker)
		end := start
		for end < len(result) && !stop(result[end]) {
			end++
		}
		if end > start {
			result = result[:start] + "[REDACTED]" + result[end:]
			offset = start + len("[REDACTED]")
		} else {
			offset = start
		}
		if offset >= len(result) {
			return result
		}
	}
}

// HeaderRedactor masks credentials that appear in header-like text
type HeaderRedactor struct{}

func (r *HeaderRedactor) Redact(input string) string {
	patterns := []string{
		"Bearer ",
		"Basic ",
		"Cookie: ",
		"X-Api-Key: ",
	}

	result := input
	for _, pattern := range patterns {
		result = redactAfter(result, pattern, func(b byte) bool {
			return b == ' ' || b == ';' || b == '\n' || b == '\r' || b == '"' || b == ','
		})
	}
	return result
}

// URLRedactor redacts sensitive URL parameters
type URLRedactor struct{}

func (r *URLRedactor) Redact(input string) string {
	sensitiveParams := []string{
		"access_token=",
		"token=",
		"apikey=",
		"api_key=",
		"key=",
		"secret=",
		"password=",
	}

	result := input
	for _, param := range sensitiveParams {
		result = redactAfter(result, param, func(b byte) bool {
			return b == '&' || b == ' ' || b == '\n' || b == '"'
		})
	}
	return result
}

// SecretRedactor masks known secret values wherever they appear
type SecretRedactor struct {
	Secret string
}

func (r *SecretRedactor) Redact(input string) string {
	if r.Secret == "" {
		return input
	}
	return strings.ReplaceAll(input, r.Secret, "[REDACTED]")
}

// NewSecureLogger creates a console-format logger writing to output
func NewSecureLogger(output io.Writer, level LogLevel, debug, quiet bool) *SecureLogger {
	return NewSecureLoggerWithFormat(output, "console", level, debug, quiet)
}

// NewSecureLoggerWithFormat creates a logger; format is "console" or "json"
func NewSecureLoggerWithFormat(output io.Writer, format string, level LogLevel, debug, quiet bool) *SecureLogger {
	if format != "json" {
		noColor := true
		if f, ok := output.(*os.File); ok && f == os.Stderr {
			noColor = color.NoColor
		}
		output = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    noColor,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}

	ctx := zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp()
	if debug {
		ctx = ctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + callerSkip)
	}

	sl := &SecureLogger{
		zl:    ctx.Logger(),
		level: level,
		debug: debug,
		quiet: quiet,
		redactors: []Redactor{
			&HeaderRedactor{},
			&URLRedactor{},
		},
	}
	if debug && sl.level < LogLevelDebug {
		sl.level = LogLevelDebug
	}
	if quiet {
		sl.level = LogLevelError
	}

	return sl
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger(debug, quiet bool) *SecureLogger {
	return NewSecureLogger(os.Stderr, LogLevelInfo, debug, quiet)
}

// WithComponent returns a child logger tagging every line with component
func (sl *SecureLogger) WithComponent(name string) *SecureLogger {
	child := *sl
	child.zl = sl.zl.With().Str("component", name).Logger()
	child.redactors = append([]Redactor(nil), sl.redactors...)
	return &child
}

func (sl *SecureLogger) redactSensitiveData(input string) string {
	result := input
	for _, redactor := range sl.redactors {
		result = redactor.Redact(result)
	}
	return result
}

func (sl *SecureLogger) shouldLog(level LogLevel) bool {
	if sl.quiet && level > LogLevelError {
		return false
	}
	return level <= sl.level
}

func (sl *SecureLogger) event(level LogLevel) *zerolog.Event {
	switch level {
	case LogLevelError:
		return sl.zl.Error()
	case LogLevelWarn:
		return sl.zl.Warn()
	case LogLevelDebug:
		return sl.zl.Debug()
	default:
		return sl.zl.Info()
	}
}

func (sl *SecureLogger) write(level LogLevel, format string, args ...interface{}) {
	if !sl.shouldLog(level) {
		return
	}
	message := sl.redactSensitiveData(fmt.Sprintf(format, args...))
	sl.event(level).Msg(message)
}

// Error logs an error message
func (sl *SecureLogger) Error(format string, args ...interface{}) {
	sl.write(LogLevelError, format, args...)
}

// Warn logs a warning message
func (sl *SecureLogger) Warn(format string, args ...interface{}) {
	sl.write(LogLevelWarn, format, args...)
}

// Info logs an info message
func (sl *SecureLogger) Info(format string, args ...interface{}) {
	sl.write(LogLevelInfo, format, args...)
}

// Debug logs a debug message
func (sl *SecureLogger) Debug(format string, args ...interface{}) {
	sl.write(LogLevelDebug, format, args...)
}

// LogHTTPRequest logs an HTTP request with sensitive data redacted
func (sl *SecureLogger) LogHTTPRequest(req *http.Request) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	headers := sl.sanitizeHeaders(req.Header)
	url := sl.redactSensitiveData(req.URL.String())

	sl.write(LogLevelDebug, "HTTP Request: %s %s Headers: %v", req.Method, url, headers)
}

// LogHTTPResponse logs an HTTP response with sensitive data redacted
func (sl *SecureLogger) LogHTTPResponse(resp *http.Response) {
	if !sl.shouldLog(LogLevelDebug) {
		return
	}

	headers := sl.sanitizeHeaders(resp.Header)
	sl.write(LogLevelDebug, "HTTP Response: %d %s Headers: %v", resp.StatusCode, resp.Status, headers)
}

func (sl *SecureLogger) sanitizeHeaders(h http.Header) map[string]string {
	sanitized := make(map[string]string, len(h))
	for name, values := range h {
		if sl.isSensitiveHeader(name) {
			sanitized[name] = "[REDACTED]"
		} else {
			sanitized[name] = strings.Join(values, ", ")
		}
	}
	return sanitized
}

func (sl *SecureLogger) isSensitiveHeader(name string) bool {
	sensitiveHeaders := []string{
		"authorization",
		"cookie",
		"set-cookie",
		"x-auth-token",
		"x-api-key",
		"bearer",
		"token",
	}

	lowerName := strings.ToLower(name)
	for _, sensitive := range sensitiveHeaders {
		if strings.Contains(lowerName, sensitive) {
			return true
		}
	}
	return false
}

// AddRedactor adds a custom redactor
func (sl *SecureLogger) AddRedactor(redactor Redactor) {
	sl.redactors = append(sl.redactors, redactor)
}
