package tenant

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "poscore/internal/errors"
	"poscore/internal/shared/testutil"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
)

type memoryPersister struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
}

func (m *memoryPersister) LoadTenant(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memoryPersister) SaveTenant(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func newTestContext(t *testing.T, p Persister) *Context {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(p, logger, WithClock(clock.Now))
}

func TestFreshInstall(t *testing.T) {
	c := newTestContext(t, &memoryPersister{})
	ctx := context.Background()

	_, err := c.RequireConfigured()
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured, "not loaded yet")

	found, err := c.LoadPersistedContext(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, c.IsFullyConfigured())
	assert.IsType(t, Unbound{}, c.Branch())

	_, err = c.RequireConfigured()
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured)
}

func TestBranchRequiresBusiness(t *testing.T) {
	p := &memoryPersister{}
	c := newTestContext(t, p)
	ctx := context.Background()

	err := c.SetBranchContext(ctx, uuid.New(), "Main")
	assert.ErrorIs(t, err, apperrors.ErrBusinessNotBound)
	assert.Zero(t, p.saves, "rejected change is not persisted")
	assert.False(t, c.IsBranchBound())
}

func TestSettersPersistImmediately(t *testing.T) {
	p := &memoryPersister{}
	c := newTestContext(t, p)
	ctx := context.Background()
	business, branch, staff := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, c.SetBusinessContext(ctx, business))
	require.NoError(t, c.SetBranchContext(ctx, branch, "Downtown"))
	require.NoError(t, c.SetStaffContext(ctx, staff, "Rana"))
	assert.Equal(t, 3, p.saves)
	assert.True(t, c.IsFullyConfigured())

	restored := newTestContext(t, p)
	found, err := restored.LoadPersistedContext(ctx)
	require.NoError(t, err)
	assert.True(t, found)

	state := restored.Snapshot()
	assert.Equal(t, business, *state.BusinessID)
	bound, ok := BranchOf(state.Branch)
	require.True(t, ok)
	assert.Equal(t, branch, bound.ID)
	assert.Equal(t, "Downtown", bound.Name)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), bound.BoundAt)
	assert.Equal(t, staff, *state.StaffID)
	assert.Equal(t, "Rana", state.StaffName)

	require.NoError(t, restored.ClearStaffContext(ctx))
	assert.Nil(t, restored.Snapshot().StaffID)
	assert.True(t, restored.IsFullyConfigured(), "logout keeps the binding")
}

func TestPersistFailureLeavesMemoryUnchanged(t *testing.T) {
	p := &memoryPersister{}
	c := newTestContext(t, p)
	ctx := context.Background()

	p.saveErr = errors.New("disk full")
	err := c.SetBusinessContext(ctx, uuid.New())
	require.Error(t, err)

	_, ok := c.BusinessID()
	assert.False(t, ok)
}

func TestBusinessLockedWhileBranchBound(t *testing.T) {
	c := newTestContext(t, &memoryPersister{})
	ctx := context.Background()
	business := uuid.New()

	require.NoError(t, c.SetBusinessContext(ctx, business))
	require.NoError(t, c.SetBranchContext(ctx, uuid.New(), "Main"))

	assert.NoError(t, c.SetBusinessContext(ctx, business), "same business is a no-op")
	assert.ErrorIs(t, c.SetBusinessContext(ctx, uuid.New()), apperrors.ErrBusinessLocked)

	got, _ := c.BusinessID()
	assert.Equal(t, business, got)
}

func TestStaffRequiresBinding(t *testing.T) {
	c := newTestContext(t, &memoryPersister{})
	err := c.SetStaffContext(context.Background(), uuid.New(), "Rana")
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured)
}

func TestStampNeverOverwritesExplicitValues(t *testing.T) {
	c := newTestContext(t, &memoryPersister{})
	ctx := context.Background()
	business, branch := uuid.New(), uuid.New()
	require.NoError(t, c.SetBusinessContext(ctx, business))
	require.NoError(t, c.SetBranchContext(ctx, branch, "Main"))

	t.Run("fills nil fields", func(t *testing.T) {
		p := &domain.Product{}
		c.Stamp(p)
		assert.Equal(t, business, *p.BusinessID)
		assert.Equal(t, branch, *p.BranchID)
	})

	t.Run("keeps explicit fields", func(t *testing.T) {
		otherBranch := uuid.New()
		p := &domain.Product{TenantScope: domain.TenantScope{BranchID: &otherBranch}}
		c.Stamp(p)
		assert.Equal(t, business, *p.BusinessID)
		assert.Equal(t, otherBranch, *p.BranchID)
	})

	t.Run("stamped pointers are independent", func(t *testing.T) {
		p := &domain.Product{}
		c.Stamp(p)
		*p.BusinessID = uuid.Nil
		got, _ := c.BusinessID()
		assert.Equal(t, business, got)
	})
}

func TestStorePersistedRoundTrip(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	c := newTestContext(t, s.Settings())
	found, err := c.LoadPersistedContext(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	business, branch := uuid.New(), uuid.New()
	require.NoError(t, c.SetBusinessContext(ctx, business))
	require.NoError(t, c.SetBranchContext(ctx, branch, "Harbour"))

	restored := newTestContext(t, s.Settings())
	found, err = restored.LoadPersistedContext(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	scope, err := restored.RequireConfigured()
	require.NoError(t, err)
	assert.Equal(t, branch, *scope.BranchID)

	require.NoError(t, s.Settings().ResetInstallation(ctx))
	found, err = restored.LoadPersistedContext(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, restored.IsFullyConfigured())
}
