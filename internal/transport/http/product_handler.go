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

// ProductService is the catalogue writer used by ProductHandler.
type ProductService interface {
	Create(ctx context.Context, p domain.Product) (domain.Product, error)
	Update(ctx context.Context, p domain.Product) (domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

// ProductHandler handles catalogue requests
type ProductHandler struct {
	service ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(service ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "product")),
	}
}

// Routes returns the product routes
func (h *ProductHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// List handles GET /api/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	render.JSON(w, r, products)
}

// Create handles POST /api/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.ProductRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.service.Create(r.Context(), productFromRequest(uuid.Nil, req))
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, p)
}

// Get handles GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p)
}

// Update handles PUT /api/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	var req api.ProductRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.service.Update(r.Context(), productFromRequest(id, req))
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p)
}

// Delete handles DELETE /api/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productFromRequest(id uuid.UUID, req api.ProductRequest) domain.Product {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return domain.Product{
		ID:     id,
		SKU:    req.SKU,
		Name:   req.Name,
		Price:  req.Price,
		Stock:  req.Stock,
		Active: active,
	}
}
