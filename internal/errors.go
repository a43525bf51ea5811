package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrInvalidInput ErrorType = iota
	ErrAuthRequired
	ErrRateLimit
	ErrTransientNetwork
	ErrSubmission
	ErrUnlock
	ErrUnexpectedResponse
	ErrNotSupported
	ErrQuotaExceeded
	ErrNotFound
	ErrJobFailed
	ErrDownloadFailed
	ErrPermissionDenied
	ErrDiskSpace
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// ProviderError describes a failure talking to a resolution provider or
// handling one of its results.
type ProviderError struct {
	Code       int                    `json:"code"`
	RemoteCode string                 `json:"remote_code,omitempty"`
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Provider   string                 `json:"provider,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	RetryAfter int                    `json:"retry_after,omitempty"` // seconds
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	var parts []string

	head := fmt.Sprintf("%s error", e.Type.String())
	if e.Provider != "" {
		head = fmt.Sprintf("%s: %s", e.Provider, head)
	}
	if e.Code != 0 {
		head = fmt.Sprintf("%s (code: %d)", head, e.Code)
	}
	if e.RemoteCode != "" {
		head = fmt.Sprintf("%s [%s]", head, e.RemoteCode)
	}
	parts = append(parts, head)

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " - ")
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// DetailedError returns a multi-line message with all available information
func (e *ProviderError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("Provider: %s", e.Provider))
	}
	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.RemoteCode != "" {
		parts = append(parts, fmt.Sprintf("Remote code: %s", e.RemoteCode))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("Retry after: %d seconds", e.RetryAfter))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrInvalidInput:
		return "InvalidInput"
	case ErrAuthRequired:
		return "AuthRequired"
	case ErrRateLimit:
		return "RateLimit"
	case ErrTransientNetwork:
		return "TransientNetwork"
	case ErrSubmission:
		return "Submission"
	case ErrUnlock:
		return "Unlock"
	case ErrUnexpectedResponse:
		return "UnexpectedResponse"
	case ErrNotSupported:
		return "NotSupported"
	case ErrQuotaExceeded:
		return "QuotaExceeded"
	case ErrNotFound:
		return "NotFound"
	case ErrJobFailed:
		return "JobFailed"
	case ErrDownloadFailed:
		return "DownloadFailed"
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrDiskSpace:
		return "DiskSpace"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewProviderError creates a ProviderError with the default suggestion and
// severity for its type
func NewProviderError(code int, message string, errorType ErrorType) *ProviderError {
	return &ProviderError{
		Code:       code,
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType, code),
		Context:    make(map[string]interface{}),
	}
}

// WithSuggestion replaces the default suggestion
func (e *ProviderError) WithSuggestion(suggestion string) *ProviderError {
	e.Suggestion = suggestion
	return e
}

// WithURL attaches the URL involved (redacted when rendered)
func (e *ProviderError) WithURL(url string) *ProviderError {
	e.URL = url
	return e
}

// WithProvider records which provider produced the error
func (e *ProviderError) WithProvider(name string) *ProviderError {
	e.Provider = name
	return e
}

// WithRemoteCode records the provider's own error code
func (e *ProviderError) WithRemoteCode(code string) *ProviderError {
	e.RemoteCode = code
	return e
}

// WithRetryAfter sets the retry delay for rate limit errors
func (e *ProviderError) WithRetryAfter(seconds int) *ProviderError {
	e.RetryAfter = seconds
	return e
}

// WithCause wraps an underlying error
func (e *ProviderError) WithCause(err error) *ProviderError {
	e.Cause = err
	return e
}

// WithContext adds context information to the error
func (e *ProviderError) WithContext(key string, value interface{}) *ProviderError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the same request may succeed when repeated
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrTransientNetwork, ErrRateLimit:
		return true
	case ErrUnexpectedResponse:
		return e.Code >= 500
	default:
		return false
	}
}

// IsCritical returns true if the error is critical and should stop execution
func (e *ProviderError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// ErrorTypeOf returns the ErrorType of the first ProviderError in err's chain
func ErrorTypeOf(err error) (ErrorType, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// IsTransient reports whether err is a network-level failure that a poll
// loop should swallow and retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	return false
}

// IsType reports whether err carries a ProviderError of the given type
func IsType(err error, errorType ErrorType) bool {
	t, ok := ErrorTypeOf(err)
	return ok && t == errorType
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType, code int) string {
	switch errorType {
	case ErrInvalidInput:
		return "Provide a magnet link, a hoster URL, a cloud folder link or a path to a .torrent/.nzb file"
	case ErrAuthRequired:
		return "Check the provider API token in the config file or the ONEDL_PROVIDERS_* environment variables"
	case ErrRateLimit:
		return "The provider is throttling requests. Wait a moment or lower api_requests_per_minute"
	case ErrTransientNetwork:
		return "Check your internet connection. Consider using --proxy if the provider is blocked"
	case ErrSubmission:
		return "The provider rejected the resource. Verify the magnet/link is valid or try another provider"
	case ErrUnlock:
		return "The link could not be unlocked. It may be expired, offline or from an unsupported hoster"
	case ErrUnexpectedResponse:
		if code >= 500 {
			return "Provider server error. Please try again later"
		}
		return "The provider returned data that could not be understood. Its API may have changed"
	case ErrNotSupported:
		return "This provider does not support this kind of resource. Run 'onedl best' to find one that does"
	case ErrQuotaExceeded:
		return "Your provider quota or traffic is exhausted. Try again later or use another provider"
	case ErrNotFound:
		return "The remote job or file no longer exists on the provider"
	case ErrJobFailed:
		return "The provider could not complete the job (dead torrent, virus, or missing articles)"
	case ErrDownloadFailed:
		return "Download failed. Check available disk space and network connection"
	case ErrPermissionDenied:
		return "Permission denied. Check file/directory permissions"
	case ErrDiskSpace:
		return "Insufficient disk space. Free up space or choose a different output directory"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrRateLimit, ErrTransientNetwork, ErrUnlock, ErrNotSupported:
		return SeverityWarning
	case ErrQuotaExceeded, ErrPermissionDenied, ErrDiskSpace, ErrAuthRequired:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL drops the query string, which is where provider tokens live
func redactSensitiveURL(url string) string {
	if i := strings.Index(url, "?"); i >= 0 {
		return url[:i] + "?[REDACTED]"
	}
	return url
}

// NewSubmissionError reports a resource the provider rejected outright
func NewSubmissionError(provider, message string) *ProviderError {
	return NewProviderError(0, message, ErrSubmission).WithProvider(provider)
}

// NewUnlockError reports a single file whose direct link could not be obtained
func NewUnlockError(provider, link, message string) *ProviderError {
	return NewProviderError(0, message, ErrUnlock).WithProvider(provider).WithURL(link)
}

// NewTransientNetworkError wraps a connection level failure
func NewTransientNetworkError(operation string, cause error) *ProviderError {
	return NewProviderError(0, fmt.Sprintf("network failure during %s", operation), ErrTransientNetwork).
		WithCause(cause)
}

// NewUnexpectedResponseError reports a payload the adapter cannot interpret
func NewUnexpectedResponseError(provider, message string) *ProviderError {
	return NewProviderError(0, message, ErrUnexpectedResponse).WithProvider(provider)
}

// NewNotSupportedError reports a resource kind a provider cannot handle
func NewNotSupportedError(provider string, kind ResourceKind) *ProviderError {
	return NewProviderError(0, fmt.Sprintf("%s resources are not supported", kind.String()), ErrNotSupported).
		WithProvider(provider)
}

// NewJobFailedError reports a remote job that ended in the ERROR state
func NewJobFailedError(provider, message string) *ProviderError {
	return NewProviderError(0, message, ErrJobFailed).WithProvider(provider)
}

// NewRateLimitError creates an error for rate limiting
func NewRateLimitError(retryAfter int) *ProviderError {
	return NewProviderError(429, "Rate limit exceeded", ErrRateLimit).
		WithRetryAfter(retryAfter).
		WithSuggestion(fmt.Sprintf("Please wait %d seconds before retrying", retryAfter))
}

// NewInvalidInputError creates an error for input that cannot be resolved
func NewInvalidInputError(input string, reason string) *ProviderError {
	return NewProviderError(400, fmt.Sprintf("Invalid input: %s", reason), ErrInvalidInput).
		WithURL(input)
}
