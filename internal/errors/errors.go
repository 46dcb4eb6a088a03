// Package errors holds the sentinel errors shared across the terminal core
// and their mapping onto HTTP problem responses.
package errors

import "errors"

// License errors
var (
	ErrLicenseNotFound   = errors.New("license not found")
	ErrLicenseExpired    = errors.New("license expired")
	ErrInvalidLicenseKey = errors.New("invalid license key")
	ErrDuplicateMachine  = errors.New("license already activated on another machine")
	ErrActivationFailed  = errors.New("activation failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrBusinessMismatch  = errors.New("license belongs to a different business; reset the license first")
	ErrLicenseCorrupted  = errors.New("persisted license is corrupted")
)

// Binding errors
var (
	ErrBranchAlreadyBound = errors.New("branch already bound: cannot rebind this terminal")
	ErrBusinessNotBound   = errors.New("business not bound")
	ErrBusinessLocked     = errors.New("business cannot change while a branch is bound")
)

// Tenant errors
var (
	ErrTenantNotConfigured = errors.New("terminal is not bound to a business and branch")
	ErrStaffNotFound       = errors.New("staff not found")
	ErrInvalidPIN          = errors.New("invalid PIN")
)

// Outbox and store errors
var (
	ErrRecordNotFound    = errors.New("sync record not found")
	ErrInvalidTransition = errors.New("invalid sync record transition")
	ErrInvalidOperation  = errors.New("invalid sync operation")
	ErrPayloadRequired   = errors.New("payload required for create and update")
	ErrNotFound          = errors.New("not found")
	ErrLimitReached      = errors.New("plan limit reached")
	ErrInvalidEntity     = errors.New("invalid entity")
)

// Remote collaborator errors
var (
	ErrUnreachable    = errors.New("remote unreachable")
	ErrRemoteRejected = errors.New("remote rejected request")
)
