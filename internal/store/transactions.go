package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const transactionColumns = `id, business_id, branch_id, number, staff_id, subtotal, tax, total,
	payment_method, status, created_at, updated_at`

// TransactionRepository persists sales transactions and their lines.
type TransactionRepository struct {
	q querier
}

// Insert writes a transaction with all of its items. Call it inside a Tx so
// the header and lines land together.
func (r *TransactionRepository) Insert(ctx context.Context, t domain.Transaction) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sales_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID.String(), nullUUID(t.BusinessID), nullUUID(t.BranchID), t.Number, nullUUID(t.StaffID),
		t.Subtotal.String(), t.Tax.String(), t.Total.String(),
		string(t.PaymentMethod), string(t.Status), toNanos(t.CreatedAt), toNanos(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for i, item := range t.Items {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO transaction_items
			(transaction_id, line_no, product_id, name, quantity, unit_price, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ID.String(), i+1, item.ProductID.String(), item.Name, item.Quantity,
			item.UnitPrice.String(), item.LineTotal.String())
		if err != nil {
			return fmt.Errorf("insert transaction item %d: %w", i+1, err)
		}
	}
	return nil
}

// SetStatus changes the status of a transaction.
func (r *TransactionRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE sales_transactions SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), toNanos(at), id.String())
	if err != nil {
		return fmt.Errorf("set transaction status: %w", err)
	}
	return requireOne(res, "set transaction status", id)
}

// Get returns one transaction with its items.
func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM sales_transactions WHERE id = ?`, id.String())
	t, err := scanTransaction(row)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, notFound(err, apperrors.ErrNotFound))
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	t.Items = items
	return t, nil
}

// CountSince returns how many transactions a branch recorded since at, used
// to number receipts.
func (r *TransactionRepository) CountSince(ctx context.Context, branchID uuid.UUID, at time.Time) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sales_transactions WHERE branch_id = ? AND created_at >= ?
	`, branchID.String(), toNanos(at)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *TransactionRepository) items(ctx context.Context, id uuid.UUID) ([]domain.TransactionItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_price, line_total
		FROM transaction_items WHERE transaction_id = ? ORDER BY line_no ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query transaction items: %w", err)
	}
	defer rows.Close()

	items := []domain.TransactionItem{}
	for rows.Next() {
		var (
			item                 domain.TransactionItem
			productID            string
			unitPrice, lineTotal string
		)
		if err := rows.Scan(&productID, &item.Name, &item.Quantity, &unitPrice, &lineTotal); err != nil {
			return nil, fmt.Errorf("scan transaction item: %w", err)
		}
		if item.ProductID, err = uuid.Parse(productID); err != nil {
			return nil, fmt.Errorf("parse product id: %w", err)
		}
		if item.UnitPrice, err = parseDecimal("unit_price", unitPrice); err != nil {
			return nil, err
		}
		if item.LineTotal, err = parseDecimal("line_total", lineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction items: %w", err)
	}
	return items, nil
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		t                             domain.Transaction
		id, subtotal, tax, total      string
		method, status                string
		businessID, branchID, staffID sql.NullString
		createdAt, updatedAt          int64
	)
	if err := row.Scan(&id, &businessID, &branchID, &t.Number, &staffID, &subtotal, &tax, &total,
		&method, &status, &createdAt, &updatedAt); err != nil {
		return domain.Transaction{}, err
	}

	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return domain.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	if t.BusinessID, err = fromNullUUID(businessID); err != nil {
		return domain.Transaction{}, err
	}
	if t.BranchID, err = fromNullUUID(branchID); err != nil {
		return domain.Transaction{}, err
	}
	if t.StaffID, err = fromNullUUID(staffID); err != nil {
		return domain.Transaction{}, err
	}
	if t.Subtotal, err = parseDecimal("subtotal", subtotal); err != nil {
		return domain.Transaction{}, err
	}
	if t.Tax, err = parseDecimal("tax", tax); err != nil {
		return domain.Transaction{}, err
	}
	if t.Total, err = parseDecimal("total", total); err != nil {
		return domain.Transaction{}, err
	}
	t.PaymentMethod = domain.PaymentMethod(method)
	t.Status = domain.TransactionStatus(status)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	return t, nil
}
