// Package api contains the request and response contracts of the local
// terminal API. Version v1 represents the current stable API version.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"poscore/pkg/contracts/domain"
)

// PaginationRequest represents common pagination parameters
type PaginationRequest struct {
	Limit  int `json:"limit" validate:"min=0,max=500"`
	Offset int `json:"offset" validate:"min=0"`
}

// LicenseActivateRequest represents a license activation request
type LicenseActivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required,min=8,max=128"`
}

// BranchBindRequest binds the terminal to a branch of its business
type BranchBindRequest struct {
	BranchID   string `json:"branch_id" validate:"required,uuid"`
	BranchName string `json:"branch_name" validate:"required,max=120"`
}

// LicenseResetRequest must carry the literal confirmation word
type LicenseResetRequest struct {
	Confirm string `json:"confirm" validate:"required,eq=RESET"`
}

// LicenseStatusResponse is the license view returned to the UI
type LicenseStatusResponse struct {
	domain.LicenseInfo
	DaysRemaining int      `json:"days_remaining"`
	BranchBound   bool     `json:"branch_bound"`
	Warnings      []string `json:"warnings,omitempty"`
}

// TenantResponse is the tenant context view returned to the UI
type TenantResponse struct {
	BusinessID      string     `json:"business_id,omitempty"`
	BranchID        string     `json:"branch_id,omitempty"`
	BranchName      string     `json:"branch_name,omitempty"`
	BranchBoundAt   *time.Time `json:"branch_bound_at,omitempty"`
	StaffID         string     `json:"staff_id,omitempty"`
	StaffName       string     `json:"staff_name,omitempty"`
	FullyConfigured bool       `json:"fully_configured"`
}

// DeadLettersResponse lists records excluded from delivery
type DeadLettersResponse struct {
	Records []domain.SyncRecord `json:"records"`
	Total   int                 `json:"total"`
}

// ProductRequest creates or replaces a catalogue product
type ProductRequest struct {
	SKU    string          `json:"sku" validate:"required,max=64"`
	Name   string          `json:"name" validate:"required,max=200"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock" validate:"min=0"`
	Active *bool           `json:"active,omitempty"`
}

// StaffCreateRequest adds a staff member with a login PIN
type StaffCreateRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Role string `json:"role" validate:"required,oneof=cashier manager owner"`
	PIN  string `json:"pin" validate:"required,numeric,min=4,max=8"`
}

// StaffUpdateRequest changes a staff member. An empty PIN keeps the current one
type StaffUpdateRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Role   string `json:"role" validate:"required,oneof=cashier manager owner"`
	Active bool   `json:"active"`
	PIN    string `json:"pin,omitempty" validate:"omitempty,numeric,min=4,max=8"`
}

// StaffLoginRequest starts a staff session on the terminal
type StaffLoginRequest struct {
	StaffID string `json:"staff_id" validate:"required,uuid"`
	PIN     string `json:"pin" validate:"required"`
}

// TransactionItemRequest is one line of a sale. A missing unit price uses
// the catalogue price, an explicit 0 rings the item up free
type TransactionItemRequest struct {
	ProductID string           `json:"product_id" validate:"required,uuid"`
	Quantity  int              `json:"quantity" validate:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// TransactionCreateRequest rings up a sale
type TransactionCreateRequest struct {
	Items         []TransactionItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string                   `json:"payment_method,omitempty" validate:"omitempty,oneof=cash card"`
}

// SyncRunResponse acknowledges a manual sync trigger
type SyncRunResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}
