package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityTransaction is the outbox entity type for sales transactions.
const EntityTransaction = "Transaction"

// TransactionStatus tracks whether a sale still counts.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionVoided    TransactionStatus = "voided"
)

// PaymentMethod records how a sale was tendered.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Transaction is a completed sale rung up at the terminal.
type Transaction struct {
	TenantScope
	ID            uuid.UUID         `json:"id"`
	Number        string            `json:"number"`
	StaffID       *uuid.UUID        `json:"staff_id,omitempty"`
	Items         []TransactionItem `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Tax           decimal.Decimal   `json:"tax"`
	Total         decimal.Decimal   `json:"total"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TransactionItem is one line of a sale.
type TransactionItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`

	// PriceOverride is a price keyed at the till. Nil takes the catalogue
	// price and zero rings the item up free. It is never stored.
	PriceOverride *decimal.Decimal `json:"-"`
}

// ComputeTotals fills line totals, subtotal, tax and total from the items
// and a tax rate expressed as a fraction (0.15 for 15%).
func (t *Transaction) ComputeTotals(taxRate decimal.Decimal) {
	subtotal := decimal.Zero
	for i := range t.Items {
		item := &t.Items[i]
		item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.LineTotal)
	}
	t.Subtotal = subtotal
	t.Tax = subtotal.Mul(taxRate).Round(2)
	t.Total = t.Subtotal.Add(t.Tax)
}
