package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/internal/license"
	"poscore/internal/outbox"
	"poscore/internal/store"
	"poscore/pkg/contracts/domain"
)

// ProductService manages the catalogue of the bound branch.
type ProductService struct {
	base
}

// NewProductService creates a product service.
func NewProductService(d Deps) *ProductService {
	return &ProductService{base: newBase(d, "product-service")}
}

// Create adds a product to the bound branch.
func (s *ProductService) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.checkProduct(p); err != nil {
		return domain.Product{}, err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.tenant.Stamp(&p)
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		count, err := tx.Products().Count(ctx, *scope.BranchID)
		if err != nil {
			return err
		}
		if err := s.allow(license.LimitProducts, count); err != nil {
			return err
		}
		if err := tx.Products().Insert(ctx, p); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, productEntry(p, domain.OperationCreate))
	})
	s.logAction(ctx, "create product", err, slog.String("product_id", p.ID.String()), slog.String("sku", p.SKU))
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Update overwrites the mutable fields of an existing product. Scope and
// creation time are kept from the stored row.
func (s *ProductService) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.checkProduct(p); err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := ownedProduct(ctx, tx.Products(), scope, p.ID)
		if err != nil {
			return err
		}
		updated = p
		updated.TenantScope = current.TenantScope
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = s.now()
		if err := tx.Products().Update(ctx, updated); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, productEntry(updated, domain.OperationUpdate))
	})
	s.logAction(ctx, "update product", err, slog.String("product_id", p.ID.String()))
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// Delete removes a product.
func (s *ProductService) Delete(ctx context.Context, id uuid.UUID) error {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := ownedProduct(ctx, tx.Products(), scope, id)
		if err != nil {
			return err
		}
		if err := tx.Products().Delete(ctx, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, outbox.Entry{
			EntityType: domain.EntityProduct,
			EntityID:   id.String(),
			Operation:  domain.OperationDelete,
			Scope:      current.TenantScope,
		})
	})
	s.logAction(ctx, "delete product", err, slog.String("product_id", id.String()))
	return err
}

// Get returns one product of the bound branch.
func (s *ProductService) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return domain.Product{}, err
	}
	return ownedProduct(ctx, s.store.Products(), scope, id)
}

// List returns the products of the bound branch.
func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	scope, err := s.tenant.RequireConfigured()
	if err != nil {
		return nil, err
	}
	return s.store.Products().List(ctx, *scope.BranchID)
}

func (s *ProductService) checkProduct(p domain.Product) error {
	if err := s.check(p); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", apperrors.ErrInvalidEntity)
	}
	return nil
}

// ownedProduct loads a product and hides it unless it belongs to scope.
func ownedProduct(ctx context.Context, repo *store.ProductRepository, scope domain.TenantScope, id uuid.UUID) (domain.Product, error) {
	p, err := repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !owns(scope, p.TenantScope) {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, apperrors.ErrNotFound)
	}
	return p, nil
}

func productEntry(p domain.Product, op domain.SyncOperation) outbox.Entry {
	return outbox.Entry{
		EntityType: domain.EntityProduct,
		EntityID:   p.ID.String(),
		Operation:  op,
		Payload:    p,
		Scope:      p.TenantScope,
	}
}
