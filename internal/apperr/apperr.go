// Package apperr defines the error kinds shared across the appliance core.
// Every subsystem wraps its failures in one of these kinds so the API layer
// can map them to a status code and a structured body without inspecting
// message strings.
package apperr

import (
	"github.com/cockroachdb/errors"
)

// Kind classifies an error for the HTTP boundary and for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnrecoverableDownload
	KindTransientDownload
	KindWROLModeDenied
	KindVersionMismatch
)

// kindError carries a Kind through an error chain.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind attaches kind to err. A nil err returns nil.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the outermost Kind attached to err, or KindUnknown.
// Rewrapping with WithKind reclassifies an error.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// Validation reports malformed user input.
func Validation(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), KindValidation)
}

// NotFound reports an unknown id, path or name.
func NotFound(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), KindNotFound)
}

// Conflict reports a duplicate or a version clash.
func Conflict(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), KindConflict)
}

// WROLDenied reports an operation forbidden while WROL Mode is active.
func WROLDenied(op string) error {
	return WithKind(errors.Newf("%s is denied while WROL Mode is enabled", op), KindWROLModeDenied)
}

// VersionMismatch reports a stale config dump.
func VersionMismatch(format string, args ...interface{}) error {
	return WithKind(errors.Newf(format, args...), KindVersionMismatch)
}

// Unrecoverable marks a download failure that must not be retried.
func Unrecoverable(err error) error {
	return WithKind(err, KindUnrecoverableDownload)
}

// Transient marks a download failure that should be retried with backoff.
func Transient(err error) error {
	return WithKind(err, KindTransientDownload)
}

// IsUnrecoverable reports whether err is marked unrecoverable.
func IsUnrecoverable(err error) bool { return KindOf(err) == KindUnrecoverableDownload }
