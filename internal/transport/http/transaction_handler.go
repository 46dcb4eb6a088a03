package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	api "poscore/pkg/contracts/api/v1"
	"poscore/pkg/contracts/domain"
)

// TransactionService rings up and voids sales.
type TransactionService interface {
	Create(ctx context.Context, t domain.Transaction) (domain.Transaction, error)
	Void(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error)
}

// TransactionHandler handles sales requests
type TransactionHandler struct {
	service TransactionService
	logger  *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(service TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "transaction")),
	}
}

// Routes returns the transaction routes
func (h *TransactionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/void", h.Void)
	return r
}

// Create handles POST /api/transactions
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.TransactionCreateRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	sale := domain.Transaction{
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Items:         make([]domain.TransactionItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, domain.TransactionItem{
			ProductID:     uuid.MustParse(item.ProductID),
			Quantity:      item.Quantity,
			PriceOverride: item.UnitPrice,
		})
	}

	t, err := h.service.Create(r.Context(), sale)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, t)
}

// Get handles GET /api/transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, t)
}

// Void handles POST /api/transactions/{id}/void
func (h *TransactionHandler) Void(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	t, err := h.service.Void(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, t)
}
