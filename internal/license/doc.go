// Package license implements the terminal's licensing state machine and its
// binding to a business and branch.
//
// # States
//
//	NotFound  -> Trial | Valid     activation
//	Valid    <-> Expired           local expiry / remote renewal
//	any       -> Developer         developer secret
//	any       -> Error             revoked by the licensing service
//
// The Manager holds the current LicenseInfo in memory and persists it as a
// sealed blob in the settings row. The blob is bound to the machine
// identifier, so a copied database does not carry a license to another
// terminal.
//
// # Binding
//
// A successful activation binds the business in the tenant context.
// BindToBranch binds the branch exactly once; ResetLicense is the only way
// back to a fresh install.
//
// # Offline behaviour
//
// Validation that cannot reach the licensing service keeps the cached
// Valid or Trial status until the local expiry date passes.
package license
