// Package domain contains the core domain models of the terminal. These
// types are shared by the store, the outbox and the HTTP surface.
package domain

import "github.com/google/uuid"

// TenantScope carries the business and branch a record belongs to. Nil
// fields are filled by the tenant context before the record is written.
type TenantScope struct {
	BusinessID *uuid.UUID `json:"business_id,omitempty"`
	BranchID   *uuid.UUID `json:"branch_id,omitempty"`
}

// Scope returns the receiver so embedding types satisfy Scoped.
func (s *TenantScope) Scope() *TenantScope { return s }

// Scoped is implemented by every tenant-owned entity.
type Scoped interface {
	Scope() *TenantScope
}
