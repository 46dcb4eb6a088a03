// Package shared provides common utilities and test helpers used across the
// terminal core.
//
// # Structure
//
// - testutil: log capture and a controllable clock
package shared
