package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "poscore/internal/errors"
	"poscore/internal/outbox"
	"poscore/internal/shared/testutil"
	"poscore/internal/store"
	"poscore/internal/tenant"
	"poscore/pkg/contracts/domain"
)

// planLimits caps named limits; a missing or non-positive cap is unlimited.
type planLimits map[string]int

func (l planLimits) WithinLimit(limit string, current int) bool {
	ceiling, ok := l[limit]
	return !ok || ceiling <= 0 || current < ceiling
}

type fixture struct {
	store    *store.Store
	outbox   *outbox.Outbox
	tenant   *tenant.Context
	clock    *testutil.FakeClock
	logs     *testutil.BufferedSlogHandler
	business uuid.UUID
	branch   uuid.UUID

	products     *ProductService
	staff        *StaffService
	transactions *TransactionService
}

func newFixture(t *testing.T, limits planLimits, bind bool) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger, logs := testutil.NewTestLogger(t)
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	tc := tenant.New(s.Settings(), logger, tenant.WithClock(clock.Now))
	_, err = tc.LoadPersistedContext(ctx)
	require.NoError(t, err)

	f := &fixture{
		store:    s,
		outbox:   outbox.New(s.Outbox(), logger, outbox.WithClock(clock.Now)),
		tenant:   tc,
		clock:    clock,
		logs:     logs,
		business: uuid.New(),
		branch:   uuid.New(),
	}
	if bind {
		require.NoError(t, tc.SetBusinessContext(ctx, f.business))
		require.NoError(t, tc.SetBranchContext(ctx, f.branch, "Main Street"))
	}

	deps := Deps{Store: s, Outbox: f.outbox, Tenant: tc, Limits: limits, Logger: logger, Now: clock.Now}
	f.products = NewProductService(deps)
	f.staff = NewStaffService(deps, bcrypt.MinCost)
	f.transactions = NewTransactionService(deps, decimal.RequireFromString("0.10"))
	return f
}

func (f *fixture) pending(t *testing.T) []domain.SyncRecord {
	t.Helper()
	recs, err := f.outbox.GetPendingRecords(context.Background(), 100)
	require.NoError(t, err)
	return recs
}

func (f *fixture) addProduct(t *testing.T, sku, price string, stock int) domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{
		SKU:    sku,
		Name:   "Item " + sku,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	})
	require.NoError(t, err)
	return p
}

// rebind resets the installation and binds a fresh business and branch,
// leaving the rows of the previous binding on disk.
func (f *fixture) rebind(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Settings().ResetInstallation(ctx))
	_, err := f.tenant.LoadPersistedContext(ctx)
	require.NoError(t, err)

	f.business, f.branch = uuid.New(), uuid.New()
	require.NoError(t, f.tenant.SetBusinessContext(ctx, f.business))
	require.NoError(t, f.tenant.SetBranchContext(ctx, f.branch, "Harbour Road"))
}

func decodePayload(t *testing.T, rec domain.SyncRecord) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Payload, &m))
	return m
}

func TestWritesRejectedWhenUnconfigured(t *testing.T) {
	f := newFixture(t, nil, false)
	ctx := context.Background()
	id := uuid.New()

	writes := []struct {
		name string
		call func() error
	}{
		{"create product", func() error {
			_, err := f.products.Create(ctx, domain.Product{SKU: "A", Name: "A"})
			return err
		}},
		{"update product", func() error {
			_, err := f.products.Update(ctx, domain.Product{ID: id, SKU: "A", Name: "A"})
			return err
		}},
		{"delete product", func() error { return f.products.Delete(ctx, id) }},
		{"create staff", func() error {
			_, err := f.staff.Create(ctx, domain.Staff{Name: "Ana", Role: domain.StaffRoleCashier}, "1234")
			return err
		}},
		{"update staff", func() error {
			_, err := f.staff.Update(ctx, domain.Staff{ID: id, Name: "Ana", Role: domain.StaffRoleCashier}, "")
			return err
		}},
		{"delete staff", func() error { return f.staff.Delete(ctx, id) }},
		{"login", func() error {
			_, err := f.staff.Login(ctx, id, "1234")
			return err
		}},
		{"create transaction", func() error {
			_, err := f.transactions.Create(ctx, domain.Transaction{
				Items: []domain.TransactionItem{{ProductID: id, Quantity: 1}},
			})
			return err
		}},
		{"void transaction", func() error {
			_, err := f.transactions.Void(ctx, id)
			return err
		}},
	}

	for _, w := range writes {
		t.Run(w.name, func(t *testing.T) {
			assert.ErrorIs(t, w.call(), apperrors.ErrTenantNotConfigured)
		})
	}
	assert.Empty(t, f.pending(t), "rejected writes must not enqueue")
}

func TestBusinessOnlyIsNotConfigured(t *testing.T) {
	f := newFixture(t, nil, false)
	require.NoError(t, f.tenant.SetBusinessContext(context.Background(), f.business))

	_, err := f.products.Create(context.Background(), domain.Product{SKU: "A", Name: "A"})
	assert.ErrorIs(t, err, apperrors.ErrTenantNotConfigured)
}

func TestServiceLogsActionResult(t *testing.T) {
	f := newFixture(t, nil, true)
	f.addProduct(t, "LOG-1", "1.00", 1)

	assert.True(t, f.logs.ContainsMessage("create product"))
	assert.True(t, f.logs.ContainsAttr("result", "success"))
	assert.True(t, f.logs.ContainsAttr("component", "product-service"))
}

func TestRowsOfPreviousBindingAreHidden(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	tea := f.addProduct(t, "TEA", "2.50", 10)
	ana := f.addStaff(t, "Ana", "4821")
	sale, err := f.transactions.Create(ctx, domain.Transaction{
		Items: []domain.TransactionItem{{ProductID: tea.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	f.rebind(t)
	queued := len(f.pending(t))

	calls := []struct {
		name string
		want error
		call func() error
	}{
		{"get product", apperrors.ErrNotFound, func() error {
			_, err := f.products.Get(ctx, tea.ID)
			return err
		}},
		{"update product", apperrors.ErrNotFound, func() error {
			_, err := f.products.Update(ctx, domain.Product{ID: tea.ID, SKU: "TEA", Name: "Green tea"})
			return err
		}},
		{"delete product", apperrors.ErrNotFound, func() error { return f.products.Delete(ctx, tea.ID) }},
		{"sell product", apperrors.ErrNotFound, func() error {
			_, err := f.transactions.Create(ctx, domain.Transaction{
				Items: []domain.TransactionItem{{ProductID: tea.ID, Quantity: 1}},
			})
			return err
		}},
		{"get transaction", apperrors.ErrNotFound, func() error {
			_, err := f.transactions.Get(ctx, sale.ID)
			return err
		}},
		{"void transaction", apperrors.ErrNotFound, func() error {
			_, err := f.transactions.Void(ctx, sale.ID)
			return err
		}},
		{"update staff", apperrors.ErrStaffNotFound, func() error {
			_, err := f.staff.Update(ctx, domain.Staff{ID: ana.ID, Name: "Ana", Role: domain.StaffRoleManager}, "")
			return err
		}},
		{"delete staff", apperrors.ErrStaffNotFound, func() error { return f.staff.Delete(ctx, ana.ID) }},
		{"login", apperrors.ErrStaffNotFound, func() error {
			_, err := f.staff.Login(ctx, ana.ID, "4821")
			return err
		}},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.call(), c.want)
		})
	}

	assert.Len(t, f.pending(t), queued, "hidden rows must not enqueue")
	list, err := f.products.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	stored, err := f.store.Products().Get(ctx, tea.ID)
	require.NoError(t, err)
	assert.Equal(t, "Item TEA", stored.Name, "old row untouched")
	assert.Equal(t, 9, stored.Stock)
}

func TestSaleAfterRebindSameDay(t *testing.T) {
	f := newFixture(t, nil, true)
	ctx := context.Background()
	tea := f.addProduct(t, "TEA", "1.00", 10)
	before, err := f.transactions.Create(ctx, domain.Transaction{
		Items: []domain.TransactionItem{{ProductID: tea.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "20260301-0001", before.Number)

	f.rebind(t)
	local := f.addProduct(t, "TEA", "1.20", 10)

	for _, want := range []string{"20260301-0001", "20260301-0002"} {
		sale, err := f.transactions.Create(ctx, domain.Transaction{
			Items: []domain.TransactionItem{{ProductID: local.ID, Quantity: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, want, sale.Number)
		require.NotNil(t, sale.BranchID)
		assert.Equal(t, f.branch, *sale.BranchID)
	}
}
