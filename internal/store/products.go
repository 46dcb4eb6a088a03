package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const productColumns = `id, business_id, branch_id, sku, name, price, stock, active, created_at, updated_at`

// ProductRepository persists products.
type ProductRepository struct {
	q querier
}

// Insert writes a new product.
func (r *ProductRepository) Insert(ctx context.Context, p domain.Product) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID.String(), nullUUID(p.BusinessID), nullUUID(p.BranchID), p.SKU, p.Name,
		p.Price.String(), p.Stock, boolInt(p.Active), toNanos(p.CreatedAt), toNanos(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a product.
func (r *ProductRepository) Update(ctx context.Context, p domain.Product) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE products SET sku = ?, name = ?, price = ?, stock = ?, active = ?, updated_at = ?
		WHERE id = ?
	`, p.SKU, p.Name, p.Price.String(), p.Stock, boolInt(p.Active), toNanos(p.UpdatedAt), p.ID.String())
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireOne(res, "update product", p.ID)
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireOne(res, "delete product", id)
}

// Get returns one product.
func (r *ProductRepository) Get(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id.String())
	p, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %s: %w", id, notFound(err, apperrors.ErrNotFound))
	}
	return p, nil
}

// List returns the products of a branch ordered by name.
func (r *ProductRepository) List(ctx context.Context, branchID uuid.UUID) ([]domain.Product, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE branch_id = ? ORDER BY name ASC, id ASC
	`, branchID.String())
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// Count returns the number of products in a branch.
func (r *ProductRepository) Count(ctx context.Context, branchID uuid.UUID) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE branch_id = ?`, branchID.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p                    domain.Product
		id, price            string
		businessID, branchID sql.NullString
		active               int
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &businessID, &branchID, &p.SKU, &p.Name, &price, &p.Stock, &active, &createdAt, &updatedAt); err != nil {
		return domain.Product{}, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return domain.Product{}, fmt.Errorf("parse product id: %w", err)
	}
	if p.BusinessID, err = fromNullUUID(businessID); err != nil {
		return domain.Product{}, err
	}
	if p.BranchID, err = fromNullUUID(branchID); err != nil {
		return domain.Product{}, err
	}
	if p.Price, err = parseDecimal("price", price); err != nil {
		return domain.Product{}, err
	}
	p.Active = active == 1
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return p, nil
}

func requireOne(res sql.Result, op string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, apperrors.ErrNotFound)
	}
	return nil
}
