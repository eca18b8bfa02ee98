package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSchema           = errors.New("schema mismatch")
	ErrFeatureNotFound  = errors.New("feature not found")
	ErrTaggerProcess    = errors.New("tagger process failure")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SchemaError reports a type or feature name missing from a document's type system.
type SchemaError struct {
	Kind string // "type" or "feature"
	Name string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s %q not found in type system", e.Kind, e.Name)
}

// Is matches ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// FeatureNotFoundError reports a feature name that does not exist on a type.
type FeatureNotFoundError struct {
	Type    string
	Feature string
}

func (e *FeatureNotFoundError) Error() string {
	return fmt.Sprintf("feature %q not found on type %q", e.Feature, e.Type)
}

// Is matches both ErrFeatureNotFound and ErrSchema.
func (e *FeatureNotFoundError) Is(target error) bool {
	return target == ErrFeatureNotFound || target == ErrSchema
}

// TaggerProcessError wraps a failure of the external tagging process.
type TaggerProcessError struct {
	Op  string
	Err error
}

func (e *TaggerProcessError) Error() string {
	if e.Err == nil {
		return "tagger " + e.Op + " failed"
	}
	return "tagger " + e.Op + ": " + e.Err.Error()
}

func (e *TaggerProcessError) Unwrap() error { return e.Err }

// Is matches ErrTaggerProcess.
func (e *TaggerProcessError) Is(target error) bool { return target == ErrTaggerProcess }

// Cause returns the innermost wrapped error, or e itself when nothing is wrapped.
func (e *TaggerProcessError) Cause() error {
	if e.Err == nil {
		return e
	}
	err := e.Err
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// ConfigurationError reports a malformed or missing configuration value.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "invalid configuration: " + e.Field
	}
	return "invalid configuration: " + e.Field + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrInvalidConfig.
func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

// Configf builds a ConfigurationError for field with a formatted cause.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}
