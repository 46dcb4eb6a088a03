package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "poscore/internal/errors"
	"poscore/internal/license"
	"poscore/internal/outbox"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
)

const (
	minPINLength = 4
	maxPINLength = 8
)

// StaffService manages the employees of the bound branch and the staff
// session of the terminal.
type StaffService struct {
	base
	pinCost int
}

// NewStaffService creates a staff service hashing PINs at the given bcrypt
// cost. Costs outside the bcrypt range fall back to bcrypt.DefaultCost.
func NewStaffService(d Deps, pinCost int) *StaffService {
	if pinCost < bcrypt.MinCost || pinCost > bcrypt.MaxCost {
		pinCost = bcrypt.DefaultCost
	}
	return &StaffService{base: newBase(d, "staff-service"), pinCost: pinCost}
}

// Create adds a staff member with the given PIN.
func (s *StaffService) Create(ctx context.Context, m domain.Staff, pin string) (domain.Staff, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Staff{}, err
	}
	if err := s.check(m); err != nil {
		return domain.Staff{}, err
	}
	if m.PINHash, err = s.hashPIN(pin); err != nil {
		return domain.Staff{}, err
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Active = true
	s.tenant.Stamp(&m)
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		count, err := tx.Staff().Count(ctx, *scope.BranchID)
		if err != nil {
			return err
		}
		if err := s.allow(license.LimitEmployees, count); err != nil {
			return err
		}
		if err := tx.Staff().Insert(ctx, m); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, staffEntry(m, domain.OperationCreate))
	})
	s.logAction(ctx, "create staff", err, slog.String("staff_id", m.ID.String()), slog.String("role", string(m.Role)))
	if err != nil {
		return domain.Staff{}, err
	}
	return m, nil
}

// Update changes name, role and active flag. An empty pin keeps the
// current PIN.
func (s *StaffService) Update(ctx context.Context, m domain.Staff, pin string) (domain.Staff, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Staff{}, err
	}
	if err := s.check(m); err != nil {
		return domain.Staff{}, err
	}

	var newHash string
	if pin != "" {
		if newHash, err = s.hashPIN(pin); err != nil {
			return domain.Staff{}, err
		}
	}

	var updated domain.Staff
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := ownedStaff(ctx, tx.Staff(), scope, m.ID)
		if err != nil {
			return err
		}
		updated = m
		updated.TenantScope = current.TenantScope
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = s.now()
		updated.PINHash = current.PINHash
		if newHash != "" {
			updated.PINHash = newHash
		}
		if err := tx.Staff().Update(ctx, updated); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, staffEntry(updated, domain.OperationUpdate))
	})
	s.logAction(ctx, "update staff", err, slog.String("staff_id", m.ID.String()))
	if err != nil {
		return domain.Staff{}, err
	}

	if !updated.Active {
		if err := s.endSessionOf(ctx, updated.ID); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// Delete removes a staff member and ends their session if they are logged in.
func (s *StaffService) Delete(ctx context.Context, id uuid.UUID) error {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := ownedStaff(ctx, tx.Staff(), scope, id)
		if err != nil {
			return err
		}
		if err := tx.Staff().Delete(ctx, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, outbox.Entry{
			EntityType: domain.EntityStaff,
			EntityID:   id.String(),
			Operation:  domain.OperationDelete,
			Scope:      current.TenantScope,
		})
	})
	s.logAction(ctx, "delete staff", err, slog.String("staff_id", id.String()))
	if err != nil {
		return err
	}
	return s.endSessionOf(ctx, id)
}

// List returns the active staff of the bound branch.
func (s *StaffService) List(ctx context.Context) ([]domain.Staff, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return nil, err
	}
	return s.store.Staff().ListActive(ctx, *scope.BranchID)
}

// Login checks the PIN of a staff member of the bound branch and makes them
// the current operator.
func (s *StaffService) Login(ctx context.Context, id uuid.UUID, pin string) (domain.Staff, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Staff{}, err
	}

	m, err := ownedStaff(ctx, s.store.Staff(), scope, id)
	if err == nil && !m.Active {
		err = fmt.Errorf("staff %s: %w", id, apperrors.ErrStaffNotFound)
	}
	if err == nil {
		if cmpErr := bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte(pin)); cmpErr != nil {
			err = apperrors.ErrInvalidPIN
		}
	}
	if err == nil {
		err = s.tenant.SetStaffContext(ctx, m.ID, m.Name)
	}

	s.logAction(ctx, "staff login", err, slog.String("staff_id", id.String()))
	if err != nil {
		return domain.Staff{}, err
	}
	return m, nil
}

// Logout clears the current operator.
func (s *StaffService) Logout(ctx context.Context) error {
	err := s.tenant.ClearStaffContext(ctx)
	s.logAction(ctx, "staff logout", err)
	return err
}

func (s *StaffService) endSessionOf(ctx context.Context, id uuid.UUID) error {
	if current := s.tenant.Snapshot().StaffID; current != nil && *current == id {
		return s.tenant.ClearStaffContext(ctx)
	}
	return nil
}

func (s *StaffService) hashPIN(pin string) (string, error) {
	if err := validatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.pinCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

var errPINFormat = fmt.Errorf("%w: pin must be %d to %d digits", apperrors.ErrInvalidEntity, minPINLength, maxPINLength)

func validatePIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return errPINFormat
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return errPINFormat
		}
	}
	return nil
}

func ownedStaff(ctx context.Context, repo *store.StaffRepository, scope domain.TenantScope, id uuid.UUID) (domain.Staff, error) {
	m, err := repo.Get(ctx, id)
	if err != nil {
		return domain.Staff{}, err
	}
	if !owns(scope, m.TenantScope) {
		return domain.Staff{}, fmt.Errorf("get staff %s: %w", id, apperrors.ErrStaffNotFound)
	}
	return m, nil
}

func staffEntry(m domain.Staff, op domain.SyncOperation) outbox.Entry {
	return outbox.Entry{
		EntityType: domain.EntityStaff,
		EntityID:   m.ID.String(),
		Operation:  op,
		Payload:    m,
		Scope:      m.TenantScope,
	}
}
