// Package errors defines the failure taxonomy shared by every Database
// Service operation (spec §7). Grounded on the teacher's pkg/errors:
// sentinel errors for errors.Is, plus a wrapping struct type that attaches
// operation context without leaking item payloads into the error string.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an argument fails a precondition the
	// caller could have checked itself (a table routed to no registered
	// provider, a malformed page token). Empty string values are not
	// rejected: both providers store them as-is.
	ErrValidation = errors.New("validation failed")

	// ErrConditionFailed is returned when a Condition Tree attached to a
	// write evaluates false against the current item state.
	ErrConditionFailed = errors.New("condition check failed")

	// ErrNotFound is returned when a table or item referenced by the
	// operation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a Post-Condition Emulator CAS loop
	// exhausts its retry budget racing concurrent writers, and when Put
	// with overwriteIfExists=false finds an item already at the key.
	ErrConflict = errors.New("conflicting concurrent write")

	// ErrTransientBackend is returned for retryable backend failures:
	// throttling, timeouts, transient network errors.
	ErrTransientBackend = errors.New("transient backend error")

	// ErrPermanentBackend is returned for non-retryable backend failures:
	// malformed requests the provider rejected, permission errors.
	ErrPermanentBackend = errors.New("permanent backend error")

	// ErrEncryptedFieldNotQueryable names the failure of a condition leaf
	// that references a Bytes attribute configured for KMS envelope
	// encryption. No condition compiler or evaluator in this module checks
	// leaves against the encrypted attributes or returns this error.
	ErrEncryptedFieldNotQueryable = errors.New("encrypted attributes are not queryable/filterable")
)

// OperationError carries operation context (which operation, which table,
// the HTTP-style status code an OperationResult should surface) around an
// underlying sentinel error. It deliberately never includes item contents:
// only attribute names and the key, never values, appear in Error().
type OperationError struct {
	Err        error
	Op         string
	Table      string
	Key        string
	StatusCode int
}

func (e *OperationError) Error() string {
	if e == nil {
		return "crosscloudkit: operation failed"
	}
	if e.Key != "" {
		return fmt.Sprintf("crosscloudkit: %s on table %q key %q failed: %v", e.Op, e.Table, e.Key, e.Err)
	}
	return fmt.Sprintf("crosscloudkit: %s on table %q failed: %v", e.Op, e.Table, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *OperationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New wraps err as an OperationError carrying op/table/statusCode context.
func New(op, table string, statusCode int, err error) *OperationError {
	return &OperationError{Op: op, Table: table, StatusCode: statusCode, Err: err}
}

// NewWithKey is New plus a key string for operations addressed to a single
// item (Put/Get/Update/Delete/Increment/AddToArray/RemoveFromArray).
func NewWithKey(op, table, key string, statusCode int, err error) *OperationError {
	return &OperationError{Op: op, Table: table, Key: key, StatusCode: statusCode, Err: err}
}

func IsNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsConditionFailed(err error) bool  { return errors.Is(err, ErrConditionFailed) }
func IsConflict(err error) bool         { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool       { return errors.Is(err, ErrValidation) }
func IsTransientBackend(err error) bool { return errors.Is(err, ErrTransientBackend) }
func IsPermanentBackend(err error) bool { return errors.Is(err, ErrPermanentBackend) }

// StatusCode extracts the HTTP-style status code an OperationError carries,
// falling back to a sentinel-based default for errors that were never
// wrapped (e.g. returned directly from a provider's SDK call site).
func StatusCode(err error) int {
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.StatusCode != 0 {
		return opErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConditionFailed):
		return 412
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrValidation):
		return 400
	case errors.Is(err, ErrTransientBackend):
		return 503
	case err != nil:
		return 500
	default:
		return 200
	}
}
