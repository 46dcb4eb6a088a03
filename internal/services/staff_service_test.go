package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "poscore/internal/errors"
	"poscore/internal/license"
	"poscore/pkg/contracts/domain"
)

func (f *fixture) addStaff(t *testing.T, name, pin string) domain.Staff {
	t.Helper()
	m, err := f.staff.Create(context.Background(), domain.Staff{Name: name, Role: domain.StaffRoleCashier}, pin)
	require.NoError(t, err)
	return m
}

func TestStaffCreateHashesPIN(t *testing.T) {
	f := newFixture(t, nil, true)
	m := f.addStaff(t, "Ana", "4821")

	assert.True(t, m.Active)
	assert.NotEqual(t, "4821", m.PINHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(m.PINHash), []byte("4821")))

	recs := f.pending(t)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.EntityStaff, recs[0].EntityType)
	payload := decodePayload(t, recs[0])
	assert.Equal(t, "Ana", payload["name"])
	assert.NotContains(t, string(recs[0].Payload), m.PINHash, "pin hash never leaves the terminal")
}

func TestStaffPINFormat(t *testing.T) {
	tests := []struct {
		name string
		pin  string
	}{
		{"too short", "123"},
		{"too long", "123456789"},
		{"letters", "12ab"},
		{"empty", ""},
	}

	f := newFixture(t, nil, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.staff.Create(context.Background(), domain.Staff{Name: "Ana", Role: domain.StaffRoleCashier}, tt.pin)
			assert.ErrorIs(t, err, apperrors.ErrInvalidEntity)
		})
	}
}

func TestStaffRoleValidated(t *testing.T) {
	f := newFixture(t, nil, true)
	_, err := f.staff.Create(context.Background(), domain.Staff{Name: "Ana", Role: "janitor"}, "1234")
	assert.ErrorIs(t, err, apperrors.ErrInvalidEntity)
}

func TestStaffLimit(t *testing.T) {
	f := newFixture(t, planLimits{license.LimitEmployees: 1}, true)
	f.addStaff(t, "Ana", "1111")

	_, err := f.staff.Create(context.Background(), domain.Staff{Name: "Ben", Role: domain.StaffRoleCashier}, "2222")
	assert.ErrorIs(t, err, apperrors.ErrLimitReached)
	assert.Len(t, f.pending(t), 1)
}

func TestStaffLoginLogout(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	m := f.addStaff(t, "Ana", "4821")

	t.Run("wrong pin", func(t *testing.T) {
		_, err := f.staff.Login(ctx, m.ID, "0000")
		assert.ErrorIs(t, err, apperrors.ErrInvalidPIN)
		assert.Nil(t, f.tenant.Snapshot().StaffID)
	})

	t.Run("unknown staff", func(t *testing.T) {
		_, err := f.staff.Login(ctx, uuid.New(), "4821")
		assert.ErrorIs(t, err, apperrors.ErrStaffNotFound)
	})

	t.Run("correct pin", func(t *testing.T) {
		got, err := f.staff.Login(ctx, m.ID, "4821")
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)

		snap := f.tenant.Snapshot()
		require.NotNil(t, snap.StaffID)
		assert.Equal(t, m.ID, *snap.StaffID)
		assert.Equal(t, "Ana", snap.StaffName)
	})

	t.Run("logout", func(t *testing.T) {
		require.NoError(t, f.staff.Logout(ctx))
		assert.Nil(t, f.tenant.Snapshot().StaffID)
	})

	assert.Len(t, f.pending(t), 1, "sessions are not synced")
}

func TestStaffUpdate(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	m := f.addStaff(t, "Ana", "4821")

	t.Run("keeps pin when empty", func(t *testing.T) {
		m.Role = domain.StaffRoleManager
		updated, err := f.staff.Update(ctx, m, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StaffRoleManager, updated.Role)

		_, err = f.staff.Login(ctx, m.ID, "4821")
		assert.NoError(t, err)
	})

	t.Run("changes pin", func(t *testing.T) {
		_, err := f.staff.Update(ctx, m, "9999")
		require.NoError(t, err)

		_, err = f.staff.Login(ctx, m.ID, "4821")
		assert.ErrorIs(t, err, apperrors.ErrInvalidPIN)
		_, err = f.staff.Login(ctx, m.ID, "9999")
		assert.NoError(t, err)
	})

	t.Run("deactivation ends session", func(t *testing.T) {
		require.NotNil(t, f.tenant.Snapshot().StaffID)
		m.Active = false
		_, err := f.staff.Update(ctx, m, "")
		require.NoError(t, err)
		assert.Nil(t, f.tenant.Snapshot().StaffID)

		_, err = f.staff.Login(ctx, m.ID, "9999")
		assert.ErrorIs(t, err, apperrors.ErrStaffNotFound)
	})
}

func TestStaffDeleteEndsSession(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	m := f.addStaff(t, "Ana", "4821")
	other := f.addStaff(t, "Ben", "1111")

	_, err := f.staff.Login(ctx, m.ID, "4821")
	require.NoError(t, err)

	require.NoError(t, f.staff.Delete(ctx, other.ID))
	assert.NotNil(t, f.tenant.Snapshot().StaffID, "deleting someone else keeps the session")

	require.NoError(t, f.staff.Delete(ctx, m.ID))
	assert.Nil(t, f.tenant.Snapshot().StaffID)

	recs := f.pending(t)
	require.Len(t, recs, 4)
	assert.Equal(t, domain.OperationDelete, recs[3].Operation)

	list, err := f.staff.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
