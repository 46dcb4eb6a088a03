package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "poscore/internal/errors"
	"poscore/internal/outbox"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
)

// TransactionService rings up and voids sales at the bound branch.
type TransactionService struct {
	base
	taxRate decimal.Decimal
}

// NewTransactionService creates a transaction service applying taxRate, a
// fraction such as 0.15, to every sale.
func NewTransactionService(d Deps, taxRate decimal.Decimal) *TransactionService {
	return &TransactionService{base: newBase(d, "transaction-service"), taxRate: taxRate}
}

// Create records a completed sale. Item names and unit prices are taken
// from the catalogue unless a price override is given, stock is decremented, and the current staff
// member is recorded as the cashier unless one is given.
func (s *TransactionService) Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := checkSale(t); err != nil {
		return domain.Transaction{}, err
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.StaffID == nil {
		t.StaffID = s.tenant.Snapshot().StaffID
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = domain.PaymentCash
	}
	t.Status = domain.TransactionCompleted
	s.tenant.Stamp(&t)
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		for i := range t.Items {
			item := &t.Items[i]
			p, err := ownedProduct(ctx, tx.Products(), scope, item.ProductID)
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			if item.Name == "" {
				item.Name = p.Name
			}
			item.UnitPrice = p.Price
			if item.PriceOverride != nil {
				item.UnitPrice = *item.PriceOverride
				item.PriceOverride = nil
			}

			p.Stock = max(p.Stock-item.Quantity, 0)
			p.UpdatedAt = now
			if err := tx.Products().Update(ctx, p); err != nil {
				return err
			}
			if err := s.enqueue(ctx, tx, productEntry(p, domain.OperationUpdate)); err != nil {
				return err
			}
		}
		t.ComputeTotals(s.taxRate)

		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		seq, err := tx.Transactions().CountSince(ctx, *scope.BranchID, dayStart)
		if err != nil {
			return err
		}
		t.Number = fmt.Sprintf("%s-%04d", now.Format("20060102"), seq+1)

		if err := tx.Transactions().Insert(ctx, t); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, transactionEntry(t, domain.OperationCreate))
	})
	s.logAction(ctx, "create transaction", err,
		slog.String("transaction_id", t.ID.String()),
		slog.String("number", t.Number),
		slog.String("total", t.Total.StringFixed(2)))
	if err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// Void marks a completed sale as voided. Stock is not restored.
func (s *TransactionService) Void(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Transaction{}, err
	}

	var voided domain.Transaction
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := ownedTransaction(ctx, tx.Transactions(), scope, id)
		if err != nil {
			return err
		}
		if t.Status == domain.TransactionVoided {
			return fmt.Errorf("%w: transaction %s already voided", apperrors.ErrInvalidEntity, id)
		}
		t.Status = domain.TransactionVoided
		t.UpdatedAt = s.now()
		if err := tx.Transactions().SetStatus(ctx, id, t.Status, t.UpdatedAt); err != nil {
			return err
		}
		voided = t
		return s.enqueue(ctx, tx, transactionEntry(t, domain.OperationUpdate))
	})
	s.logAction(ctx, "void transaction", err, slog.String("transaction_id", id.String()))
	if err != nil {
		return domain.Transaction{}, err
	}
	return voided, nil
}

// Get returns one transaction of the bound branch with its items.
func (s *TransactionService) Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Transaction{}, err
	}
	return ownedTransaction(ctx, s.store.Transactions(), scope, id)
}

func ownedTransaction(ctx context.Context, repo *store.TransactionRepository, scope domain.TenantScope, id uuid.UUID) (domain.Transaction, error) {
	t, err := repo.Get(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !owns(scope, t.TenantScope) {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, apperrors.ErrNotFound)
	}
	return t, nil
}

func checkSale(t domain.Transaction) error {
	if len(t.Items) == 0 {
		return fmt.Errorf("%w: transaction has no items", apperrors.ErrInvalidEntity)
	}
	for i, item := range t.Items {
		if item.ProductID == uuid.Nil {
			return fmt.Errorf("%w: item %d has no product", apperrors.ErrInvalidEntity, i+1)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be positive", apperrors.ErrInvalidEntity, i+1)
		}
		if item.PriceOverride != nil && item.PriceOverride.IsNegative() {
			return fmt.Errorf("%w: item %d price must not be negative", apperrors.ErrInvalidEntity, i+1)
		}
	}
	switch t.PaymentMethod {
	case "", domain.PaymentCash, domain.PaymentCard:
	default:
		return fmt.Errorf("%w: unknown payment method %q", apperrors.ErrInvalidEntity, t.PaymentMethod)
	}
	return nil
}

func transactionEntry(t domain.Transaction, op domain.SyncOperation) outbox.Entry {
	return outbox.Entry{
		EntityType: domain.EntityTransaction,
		EntityID:   t.ID.String(),
		Operation:  op,
		Payload:    t,
		Scope:      t.TenantScope,
	}
}
