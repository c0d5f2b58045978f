package helpers

import (
	"errors"
	"fmt"
	"market-sentinel/src/logger"
	"sync"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type SentinelError struct {
	Message string
	Cause   error
}

func (e *SentinelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SentinelError) Unwrap() error {
	return e.Cause
}

// TransportError: a data source fetch or connect failed. Retried at the next
// sweep or reconnect.
type TransportError struct{ SentinelError }

// ParseError: one inbound event or response could not be decoded.
type ParseError struct{ SentinelError }

// StorageError: a tick could not be persisted.
type StorageError struct{ SentinelError }

// ChannelError: an alert sink failed to deliver.
type ChannelError struct {
	SentinelError
	Channel string
}

// ConfigError: invalid or missing configuration, raised at construction time.
type ConfigError struct{ SentinelError }

// -----------------------------------------------------------------------------

func NewTransportError(cause error, format string, args ...interface{}) *TransportError {
	return &TransportError{SentinelError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func NewParseError(cause error, format string, args ...interface{}) *ParseError {
	return &ParseError{SentinelError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func NewStorageError(cause error, format string, args ...interface{}) *StorageError {
	return &StorageError{SentinelError{Message: fmt.Sprintf(format, args...), Cause: cause}}
}

func NewChannelError(channel string, cause error) *ChannelError {
	return &ChannelError{
		SentinelError: SentinelError{Message: fmt.Sprintf("alert channel %s failed", channel), Cause: cause},
		Channel:       channel,
	}
}

func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{SentinelError{Message: fmt.Sprintf(format, args...)}}
}

// -----------------------------------------------------------------------------

// IsConfigError reports whether err (or anything it wraps) is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

// ErrorHandler logs non-fatal errors and keeps a running count per category.
type ErrorHandler struct {
	Logger *logger.Logger
	counts map[string]int
	mu     sync.Mutex
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger("ErrorHandler")
	}
	return &ErrorHandler{
		Logger: log,
		counts: make(map[string]int),
	}
}

// -----------------------------------------------------------------------------

// Handle logs err against context and records its category. It never panics
// and never returns the error, so callers keep looping.
func (e *ErrorHandler) Handle(err error, context string) {
	if err == nil {
		return
	}
	category := Category(err)
	e.mu.Lock()
	e.counts[category]++
	e.mu.Unlock()
	e.Logger.Error("Error in %s [%s]: %v", context, category, err)
}

// -----------------------------------------------------------------------------

// Count returns how many errors of the given category were handled.
func (e *ErrorHandler) Count(category string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[category]
}

// -----------------------------------------------------------------------------

// Category maps an error to its taxonomy name.
func Category(err error) string {
	var (
		te *TransportError
		pe *ParseError
		se *StorageError
		ce *ChannelError
		ge *ConfigError
	)
	switch {
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &se):
		return "storage"
	case errors.As(err, &ce):
		return "channel"
	case errors.As(err, &ge):
		return "config"
	default:
		return "unknown"
	}
}
