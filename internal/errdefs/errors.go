// Package errdefs defines the error taxonomy shared by the processing core.
// Every failure surfaced by the pipeline carries one of these kinds so that
// the resilience layer can decide between retry, degradation, fallback and
// immediate propagation.
package errdefs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindDependency    Kind = "dependency"
	KindTimeout       Kind = "timeout"
	KindResource      Kind = "resource"
	KindProcessing    Kind = "processing"
	KindCache         Kind = "cache"
)

type kinded interface {
	Kind() Kind
}

type ValidationError struct {
	error
}

func (e *ValidationError) Kind() Kind { return KindValidation }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{fmt.Errorf(format, args...)}
}

type ConfigurationError struct {
	error
}

func (e *ConfigurationError) Kind() Kind { return KindConfiguration }

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{fmt.Errorf(format, args...)}
}

type DependencyError struct {
	error
}

func (e *DependencyError) Kind() Kind { return KindDependency }

func NewDependencyError(format string, args ...any) *DependencyError {
	return &DependencyError{fmt.Errorf(format, args...)}
}

type TimeoutError struct {
	error
}

func (e *TimeoutError) Kind() Kind { return KindTimeout }

func NewTimeoutError(format string, args ...any) *TimeoutError {
	return &TimeoutError{fmt.Errorf(format, args...)}
}

type ResourceError struct {
	error
}

func (e *ResourceError) Kind() Kind { return KindResource }

func NewResourceError(format string, args ...any) *ResourceError {
	return &ResourceError{fmt.Errorf(format, args...)}
}

type ProcessingError struct {
	error
}

func (e *ProcessingError) Kind() Kind { return KindProcessing }

func NewProcessingError(format string, args ...any) *ProcessingError {
	return &ProcessingError{fmt.Errorf(format, args...)}
}

type CacheError struct {
	error
}

func (e *CacheError) Kind() Kind { return KindCache }

func NewCacheError(format string, args ...any) *CacheError {
	return &CacheError{fmt.Errorf(format, args...)}
}

// KindOf walks the wrap chain and returns the kind of the first classified
// error it finds. Unclassified errors default to KindProcessing so that
// unknown engine failures remain retryable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := e.(kinded); ok {
			return k.Kind()
		}
	}
	return KindProcessing
}

// IsRetryable reports whether an error of this kind may be re-attempted by
// the resilience layer. Validation, configuration and dependency failures
// never are.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindResource, KindProcessing:
		return true
	default:
		return false
	}
}
