// Package errors classifies failures of the ingestion pipeline.
//
// Only KindValidation is ever surfaced to the SDK. Every other kind is
// handled inside the collector and shows up in metrics and logs.
package errors

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindEnrichmentDegraded
	KindClassificationReject
	KindDuplicateReject
	KindStorageTransient
	KindStorageFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEnrichmentDegraded:
		return "enrichment_degraded"
	case KindClassificationReject:
		return "classification_reject"
	case KindDuplicateReject:
		return "duplicate_reject"
	case KindStorageTransient:
		return "storage_transient"
	case KindStorageFatal:
		return "storage_fatal"
	default:
		return "unknown"
	}
}

// Error is the categorised error used across the collector.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same Kind. This allows
//
//	errors.Is(err, verrors.ErrValidation)
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the failure may succeed when attempted again.
func (e *Error) Retryable() bool {
	return e.Kind == KindStorageTransient
}

// Sentinels for errors.Is checks.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrEnrichmentDegraded   = &Error{Kind: KindEnrichmentDegraded}
	ErrClassificationReject = &Error{Kind: KindClassificationReject}
	ErrDuplicateReject      = &Error{Kind: KindDuplicateReject}
	ErrStorageTransient     = &Error{Kind: KindStorageTransient}
	ErrStorageFatal         = &Error{Kind: KindStorageFatal}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func StorageTransient(msg string, cause error) *Error {
	return Wrap(KindStorageTransient, msg, cause)
}

func StorageFatal(msg string, cause error) *Error {
	return Wrap(KindStorageFatal, msg, cause)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
