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

// StaffService manages employees and the staff session.
type StaffService interface {
	Create(ctx context.Context, m domain.Staff, pin string) (domain.Staff, error)
	Update(ctx context.Context, m domain.Staff, pin string) (domain.Staff, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]domain.Staff, error)
	Login(ctx context.Context, id uuid.UUID, pin string) (domain.Staff, error)
	Logout(ctx context.Context) error
}

// StaffHandler handles staff and session requests
type StaffHandler struct {
	service StaffService
	logger  *slog.Logger
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(service StaffService, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "staff")),
	}
}

// Routes returns the staff routes
func (h *StaffHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

// List handles GET /api/staff
func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	if members == nil {
		members = []domain.Staff{}
	}
	render.JSON(w, r, members)
}

// Create handles POST /api/staff
func (h *StaffHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req api.StaffCreateRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	m, err := h.service.Create(r.Context(), domain.Staff{
		Name: req.Name,
		Role: domain.StaffRole(req.Role),
	}, req.PIN)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, m)
}

// Update handles PUT /api/staff/{id}
func (h *StaffHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	var req api.StaffUpdateRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	m, err := h.service.Update(r.Context(), domain.Staff{
		ID:     id,
		Name:   req.Name,
		Role:   domain.StaffRole(req.Role),
		Active: req.Active,
	}, req.PIN)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, m)
}

// Delete handles DELETE /api/staff/{id}
func (h *StaffHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Login handles POST /api/staff/login
func (h *StaffHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.StaffLoginRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	m, err := h.service.Login(r.Context(), uuid.MustParse(req.StaffID), req.PIN)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, m)
}

// Logout handles POST /api/staff/logout
func (h *StaffHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
