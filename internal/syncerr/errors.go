// Package syncerr defines the error taxonomy shared by the sync jobs.
//
// Errors come in two flavours that work together:
//
//   - Sentinel values (ErrSchemaMismatch, ErrTransport, ErrRejected, ErrSyncFailed)
//     for classification with errors.Is.
//   - Typed errors (*SchemaMismatchError, *TransportError, *RejectedError,
//     *SyncFailedError) that carry details and can be extracted with errors.As.
//
// Every typed error matches its sentinel:
//
//	if errors.Is(err, syncerr.ErrTransport) {
//	    // transient, safe to retry later
//	}
package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch is returned when a document or remote record is
	// malformed: a required field is missing or a field has the wrong shape.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrTransport is returned for transient remote failures such as network
	// errors, rate limiting or server errors.
	ErrTransport = errors.New("transport error")

	// ErrRejected is returned when the remote service permanently rejects a
	// request, typically because of validation or authorization.
	ErrRejected = errors.New("rejected by remote")

	// ErrSyncFailed is the job-level aggregate failure.
	ErrSyncFailed = errors.New("sync failed")
)

// SchemaMismatchError describes a malformed document or record.
type SchemaMismatchError struct {
	// Field is the offending field name; empty when the whole value is bad.
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema mismatch: %s", e.Reason)
	}
	return fmt.Sprintf("schema mismatch: field %q: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Mismatch is shorthand for building a *SchemaMismatchError.
func Mismatch(field, format string, args ...any) error {
	return &SchemaMismatchError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransportError wraps a transient failure talking to the remote service.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport error (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RejectedError is a permanent rejection by the remote service.
type RejectedError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: rejected", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d", e.StatusCode)
		if e.Code != "" {
			fmt.Fprintf(&b, " %s", e.Code)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// ItemFailure records why a single document could not be synced.
type ItemFailure struct {
	// Item identifies the document: its name when known, otherwise its path.
	Item string
	Err  error
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Item, f.Err)
}

func (f ItemFailure) Unwrap() error { return f.Err }

// SyncFailedError aggregates the failures of one job run.
//
// For the importer it carries per-document failures; for the exporter it
// usually carries a single Cause that aborted the whole run.
type SyncFailedError struct {
	Job      string
	Cause    error
	Failures []ItemFailure
	// Total is the number of items the job attempted; zero when unknown.
	Total int
}

func (e *SyncFailedError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: sync failed: %v", e.Job, e.Cause)
	case len(e.Failures) == 1:
		return fmt.Sprintf("%s: sync failed: %v", e.Job, e.Failures[0])
	default:
		return fmt.Sprintf("%s: sync failed: %d of %d items failed", e.Job, len(e.Failures), e.Total)
	}
}

// Unwrap exposes the cause and every item failure to errors.Is/As.
func (e *SyncFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Is reports whether target is ErrSyncFailed.
func (e *SyncFailedError) Is(target error) bool {
	return target == ErrSyncFailed
}

// Partial reports whether only some of the attempted items failed.
func (e *SyncFailedError) Partial() bool {
	return e.Cause == nil && len(e.Failures) > 0 && len(e.Failures) < e.Total
}

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransport)
}

// IsPermanent returns true for failures that will not go away by retrying:
// malformed data and remote rejections.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrRejected)
}
