// Package errors provides standardized error handling for the reconstruction
// server. It includes error classification matching the session error
// taxonomy (configuration, protocol, stage processing, I/O), standard error
// variables, and helper functions for consistent error wrapping across the
// system.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes.
// Every class is terminal for the session that raised it; classification
// exists for reporting and metrics, not for retry decisions.
type ErrorClass int

const (
	// ErrorConfig represents errors raised before any data flows: unknown
	// stage names, invalid stage parameters, malformed chain descriptors.
	ErrorConfig ErrorClass = iota
	// ErrorProtocol represents wire-level decode failures: unknown type
	// tags, truncated headers, buffer lengths inconsistent with declared
	// dimensions.
	ErrorProtocol
	// ErrorProcessing represents a failure signalled by a stage's Process.
	ErrorProcessing
	// ErrorIO represents connection-level read/write failures.
	ErrorIO
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorConfig:
		return "config"
	case ErrorProtocol:
		return "protocol"
	case ErrorProcessing:
		return "processing"
	case ErrorIO:
		return "io"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrUnknownStage   = errors.New("unknown stage type")
	ErrDuplicateStage = errors.New("stage type already registered")

	// Wire protocol errors
	ErrUnknownTag     = errors.New("no codec registered for type tag")
	ErrDuplicateTag   = errors.New("type tag already registered")
	ErrTruncatedFrame = errors.New("truncated frame")
	ErrLengthMismatch = errors.New("buffer length inconsistent with declared dimensions")

	// Message errors
	ErrEmptyMessage = errors.New("message has no segments")
	ErrTypeMismatch = errors.New("segment type mismatch")
	ErrMessageMoved = errors.New("message ownership transferred")
	ErrNoEncoder    = errors.New("no encoder matches message")

	// Queue and lifecycle errors
	ErrQueueClosed    = errors.New("queue closed")
	ErrQueueAborted   = errors.New("queue aborted")
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrAlreadyStopped = errors.New("already stopped")

	// Session errors
	ErrSessionConsumed = errors.New("session already consumed")
	ErrStageFailed     = errors.New("stage processing failed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify returns the error class for an error. Errors that carry no
// classification default to ErrorProcessing, the broadest terminal class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorProcessing
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrMissingConfig),
		errors.Is(err, ErrUnknownStage),
		errors.Is(err, ErrDuplicateStage):
		return ErrorConfig
	case errors.Is(err, ErrUnknownTag),
		errors.Is(err, ErrTruncatedFrame),
		errors.Is(err, ErrLengthMismatch):
		return ErrorProtocol
	}

	return ErrorProcessing
}

// IsConfig checks if an error is a configuration error
func IsConfig(err error) bool {
	return err != nil && Classify(err) == ErrorConfig
}

// IsProtocol checks if an error is a wire protocol error
func IsProtocol(err error) bool {
	return err != nil && Classify(err) == ErrorProtocol
}

// IsProcessing checks if an error is a stage processing error
func IsProcessing(err error) bool {
	return err != nil && Classify(err) == ErrorProcessing
}

// IsIO checks if an error is a connection-level I/O error
func IsIO(err error) bool {
	return err != nil && Classify(err) == ErrorIO
}

// newClassified creates a new classified error.
// This is an internal helper - use the Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapConfig wraps an error as a configuration error with context
func WrapConfig(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorConfig, wrappedErr, component, method, wrappedErr.Error())
}

// WrapProtocol wraps an error as a wire protocol error with context
func WrapProtocol(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorProtocol, wrappedErr, component, method, wrappedErr.Error())
}

// WrapProcessing wraps an error as a stage processing error with context
func WrapProcessing(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorProcessing, wrappedErr, component, method, wrappedErr.Error())
}

// WrapIO wraps an error as a connection-level I/O error with context
func WrapIO(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorIO, wrappedErr, component, method, wrappedErr.Error())
}

// Is reports whether any error in err's chain matches target.
// Re-exported so callers don't need both this package and the stdlib one.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
