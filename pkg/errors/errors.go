package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents connection failures, timeouts and non-success statuses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents responses that are not the expected structure
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStore represents persistence errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents site or application configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError is an error raised while resolving a price for one site
type ScrapeError struct {
	Type    ErrorType
	Site    string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Site, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Site, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later attempt could succeed.
// Lookups are never retried within a batch; the next refresh cycle is the retry.
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// TypeOf returns the ErrorType of err, or "" when err is not a ScrapeError
func TypeOf(err error) ErrorType {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// New creates a new ScrapeError
func New(errType ErrorType, site, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Site:    site,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(site, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, site, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(site, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, site, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(site string, duration time.Duration) *ScrapeError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, site, message, nil)
}

// NewCache creates a new cache error
func NewCache(site, message string, err error) *ScrapeError {
	return New(ErrorTypeCache, site, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(site, message string, err error) *ScrapeError {
	return New(ErrorTypePublisher, site, message, err)
}

// NewStore creates a new store error
func NewStore(site, message string, err error) *ScrapeError {
	return New(ErrorTypeStore, site, message, err)
}

// NewValidation creates a new validation error
func NewValidation(site, message string) *ScrapeError {
	return New(ErrorTypeValidation, site, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(site, message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, site, message, err)
}
