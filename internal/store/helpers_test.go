package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"poscore/pkg/contracts/domain"
)

var (
	testBusiness = uuid.MustParse("6f0c9d3e-0f7a-4c55-9a55-4f4f2f7f0001")
	testBranch   = uuid.MustParse("6f0c9d3e-0f7a-4c55-9a55-4f4f2f7f0002")
	baseTime     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func scope() domain.TenantScope {
	b, br := testBusiness, testBranch
	return domain.TenantScope{BusinessID: &b, BranchID: &br}
}

func newTestRecord(entityType, entityID string, op domain.SyncOperation, at time.Time) domain.SyncRecord {
	payload, _ := json.Marshal(map[string]string{"id": entityID})
	sc := scope()
	return domain.SyncRecord{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		Operation:   op,
		Payload:     payload,
		PayloadHash: "hash-" + entityID,
		BusinessID:  sc.BusinessID,
		BranchID:    sc.BranchID,
		Status:      domain.SyncPending,
		CreatedAt:   at,
	}
}

func newTestProduct(sku string) domain.Product {
	return domain.Product{
		TenantScope: scope(),
		ID:          uuid.New(),
		SKU:         sku,
		Name:        "Product " + sku,
		Price:       decimal.RequireFromString("4.25"),
		Stock:       10,
		Active:      true,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}
