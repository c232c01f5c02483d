package cas

import "errors"

// StoreError represents a domain error from storage and authority operations.
//
// These are business logic outcomes (key not found, hash mismatch, quota
// exceeded, ...) as opposed to infrastructure errors (database unreachable,
// corrupt record). The transport layer embedding this library translates
// StoreError codes to wire status codes; the core never decides those.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Key is the CAS key or entity id related to the error (if applicable)
	Key Key

	// Expected and Actual are populated for ErrHashMismatch only and carry
	// the declared and recomputed content keys.
	Expected Key
	Actual   Key
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return e.Message + ": " + string(e.Key)
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested blob/node/token/depot/commit is
	// absent, or was present but lazily expired.
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a uniqueness violation (duplicate depot
	// name, duplicate commit for a root).
	ErrAlreadyExists

	// ErrHashMismatch indicates declared and computed content keys differ.
	// The blob is not stored when this is returned.
	ErrHashMismatch

	// ErrAccessDenied indicates a credential, scope, or role check failed.
	ErrAccessDenied

	// ErrExpired indicates a credential exists but its expiry is in the past.
	ErrExpired

	// ErrRevoked indicates a ticket was revoked before the operation.
	ErrRevoked

	// ErrConflict indicates a state conflict, such as committing a ticket
	// that has already been committed.
	ErrConflict

	// ErrQuotaExceeded indicates a ticket write quota would be exceeded.
	ErrQuotaExceeded

	// ErrUnsupportedMediaType indicates a content type not accepted by a
	// ticket's commit configuration.
	ErrUnsupportedMediaType

	// ErrInvalidArgument indicates malformed input: bad key syntax, empty
	// name, unparseable credential material.
	ErrInvalidArgument

	// ErrIOError indicates a storage backend failure while reading or
	// writing a record.
	ErrIOError
)

// IsCode reports whether err is a *StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found store error. Callers check
// this constantly, so it gets a dedicated helper.
func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound)
}
