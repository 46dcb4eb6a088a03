package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityStaff is the outbox entity type for staff members.
const EntityStaff = "Staff"

// StaffRole limits what a staff member may do at the terminal.
type StaffRole string

const (
	StaffRoleCashier StaffRole = "cashier"
	StaffRoleManager StaffRole = "manager"
	StaffRoleOwner   StaffRole = "owner"
)

// Staff is an employee who logs into the terminal with a PIN.
type Staff struct {
	TenantScope
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=120"`
	Role      StaffRole `json:"role" validate:"oneof=cashier manager owner"`
	PINHash   string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
