package domain

import (
	"time"

	"github.com/google/uuid"
)

// LicenseStatus represents the status of the terminal's license
type LicenseStatus string

const (
	LicenseValid     LicenseStatus = "Valid"
	LicenseTrial     LicenseStatus = "Trial"
	LicenseExpired   LicenseStatus = "Expired"
	LicenseNotFound  LicenseStatus = "NotFound"
	LicenseDeveloper LicenseStatus = "Developer"
	LicenseError     LicenseStatus = "Error"
)

// Usable reports whether the status lets plan features run.
func (s LicenseStatus) Usable() bool {
	return s == LicenseValid || s == LicenseTrial || s == LicenseDeveloper
}

// PlanLimits are the plan-derived limits that gate downstream features.
// A limit of zero or less means unlimited.
type PlanLimits struct {
	MaxEmployeeCount int      `json:"max_employee_count"`
	MaxProductCount  int      `json:"max_product_count"`
	CloudSyncEnabled bool     `json:"cloud_sync_enabled"`
	Features         []string `json:"features,omitempty"`
}

// LicenseInfo is the outcome of license activation or validation
type LicenseInfo struct {
	Status         LicenseStatus `json:"status"`
	MachineID      string        `json:"machine_id"`
	KeyHint        string        `json:"key_hint,omitempty"`
	BusinessID     *uuid.UUID    `json:"business_id,omitempty"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
	PlanName       string        `json:"plan_name,omitempty"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	PlanLimits
	ActivatedAt   time.Time `json:"activated_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	Message       string    `json:"message,omitempty"`
}

// ExpiredAt reports whether the license has lapsed at now.
func (l LicenseInfo) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// DaysRemaining returns the whole days left before expiry, or -1 when the
// license does not expire.
func (l LicenseInfo) DaysRemaining(now time.Time) int {
	if l.ExpiresAt == nil {
		return -1
	}
	d := l.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// ActivationResult is what the licensing collaborator returns on a
// successful activation.
type ActivationResult struct {
	BusinessID     uuid.UUID  `json:"business_id"`
	SubscriptionID string     `json:"subscription_id"`
	PlanName       string     `json:"plan_name"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Trial          bool       `json:"trial"`
	PlanLimits
}
