package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const staffColumns = `id, business_id, branch_id, name, role, pin_hash, active, created_at, updated_at`

// StaffRepository persists staff members.
type StaffRepository struct {
	q querier
}

// Insert writes a new staff member.
func (r *StaffRepository) Insert(ctx context.Context, s domain.Staff) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO staff (`+staffColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID.String(), nullUUID(s.BusinessID), nullUUID(s.BranchID), s.Name, string(s.Role),
		s.PINHash, boolInt(s.Active), toNanos(s.CreatedAt), toNanos(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a staff member.
func (r *StaffRepository) Update(ctx context.Context, s domain.Staff) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE staff SET name = ?, role = ?, pin_hash = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, s.Name, string(s.Role), s.PINHash, boolInt(s.Active), toNanos(s.UpdatedAt), s.ID.String())
	if err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	return requireOne(res, "update staff", s.ID)
}

// Delete removes a staff member.
func (r *StaffRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM staff WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete staff: %w", err)
	}
	return requireOne(res, "delete staff", id)
}

// Get returns one staff member.
func (r *StaffRepository) Get(ctx context.Context, id uuid.UUID) (domain.Staff, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = ?`, id.String())
	s, err := scanStaff(row)
	if err != nil {
		return domain.Staff{}, fmt.Errorf("get staff %s: %w", id, notFound(err, apperrors.ErrStaffNotFound))
	}
	return s, nil
}

// ListActive returns the active staff of a branch ordered by name.
func (r *StaffRepository) ListActive(ctx context.Context, branchID uuid.UUID) ([]domain.Staff, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+staffColumns+` FROM staff
		WHERE branch_id = ? AND active = 1
		ORDER BY name ASC, id ASC
	`, branchID.String())
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	members := []domain.Staff{}
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff: %w", err)
	}
	return members, nil
}

// Count returns the number of active staff in a branch.
func (r *StaffRepository) Count(ctx context.Context, branchID uuid.UUID) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff WHERE branch_id = ? AND active = 1`, branchID.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count staff: %w", err)
	}
	return n, nil
}

func scanStaff(row rowScanner) (domain.Staff, error) {
	var (
		s                    domain.Staff
		id, role             string
		businessID, branchID sql.NullString
		active               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &businessID, &branchID, &s.Name, &role, &s.PINHash, &active, &createdAt, &updatedAt); err != nil {
		return domain.Staff{}, err
	}

	var err error
	if s.ID, err = uuid.Parse(id); err != nil {
		return domain.Staff{}, fmt.Errorf("parse staff id: %w", err)
	}
	if s.BusinessID, err = fromNullUUID(businessID); err != nil {
		return domain.Staff{}, err
	}
	if s.BranchID, err = fromNullUUID(branchID); err != nil {
		return domain.Staff{}, err
	}
	s.Role = domain.StaffRole(role)
	s.Active = active == 1
	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)
	return s, nil
}
