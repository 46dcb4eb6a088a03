package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "poscore/internal/errors"
	"poscore/internal/license"
	api "poscore/pkg/contracts/api/v1"
	"poscore/pkg/contracts/domain"
)

const expiryWarningDays = 7

// LicenseService is the license manager as seen by the HTTP layer.
type LicenseService interface {
	Info() domain.LicenseInfo
	ActivateLicense(ctx context.Context, key string) (domain.LicenseInfo, error)
	ValidateLicense(ctx context.Context) (domain.LicenseInfo, error)
	BindToBranch(ctx context.Context, branchID uuid.UUID, branchName string) error
	ResetLicense(ctx context.Context) error
}

// BranchReporter tells whether the terminal is bound to a branch.
type BranchReporter interface {
	IsBranchBound() bool
}

// LicenseNotifier is told about every license change so connected UIs can
// refresh.
type LicenseNotifier interface {
	BroadcastLicenseStatus(status any)
}

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service  LicenseService
	branch   BranchReporter
	notifier LicenseNotifier
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewLicenseHandler creates a new license handler. notifier may be nil.
func NewLicenseHandler(service LicenseService, branch BranchReporter, notifier LicenseNotifier, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		branch:   branch,
		notifier: notifier,
		logger:   logger.With(slog.String("handler", "license")),
		tracer:   otel.Tracer("license-handler"),
		now:      time.Now,
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetStatus)
	r.Post("/activate", h.Activate)
	r.Post("/validate", h.Validate)
	r.Post("/branch", h.BindBranch)
	r.Post("/reset", h.Reset)
	return r
}

// GetStatus handles GET /api/license
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.statusResponse(h.service.Info()))
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req api.LicenseActivateRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "license_handler.activate",
		trace.WithAttributes(attribute.String("license_key", license.MaskLicenseKey(req.LicenseKey))))
	defer span.End()

	info, err := h.service.ActivateLicense(ctx, req.LicenseKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	span.SetAttributes(attribute.String("license_status", string(info.Status)))

	h.logger.InfoContext(ctx, "license activated",
		slog.String("license_key", license.MaskLicenseKey(req.LicenseKey)),
		slog.String("status", string(info.Status)),
		slog.String("plan", info.PlanName))
	h.respond(w, r, info)
}

// Validate handles POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "license_handler.validate")
	defer span.End()

	info, err := h.service.ValidateLicense(ctx)
	if err != nil {
		span.RecordError(err)
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	h.respond(w, r, info)
}

// BindBranch handles POST /api/license/branch
func (h *LicenseHandler) BindBranch(w http.ResponseWriter, r *http.Request) {
	var req api.BranchBindRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	// validated as a uuid above
	branchID := uuid.MustParse(req.BranchID)

	if err := h.service.BindToBranch(r.Context(), branchID, req.BranchName); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	h.respond(w, r, h.service.Info())
}

// Reset handles POST /api/license/reset
func (h *LicenseHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req api.LicenseResetRequest
	if err := decodeRequest(r, &req); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.service.ResetLicense(r.Context()); err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	h.logger.WarnContext(r.Context(), "installation reset")
	h.respond(w, r, h.service.Info())
}

func (h *LicenseHandler) respond(w http.ResponseWriter, r *http.Request, info domain.LicenseInfo) {
	resp := h.statusResponse(info)
	if h.notifier != nil {
		h.notifier.BroadcastLicenseStatus(resp)
	}
	render.JSON(w, r, resp)
}

func (h *LicenseHandler) statusResponse(info domain.LicenseInfo) api.LicenseStatusResponse {
	resp := api.LicenseStatusResponse{
		LicenseInfo: info,
		BranchBound: h.branch != nil && h.branch.IsBranchBound(),
	}

	if info.ExpiresAt != nil {
		left := info.ExpiresAt.Sub(h.now()).Hours() / 24
		resp.DaysRemaining = max(0, int(math.Ceil(left)))
		if info.Status.Usable() && resp.DaysRemaining <= expiryWarningDays {
			resp.Warnings = append(resp.Warnings, "license expires soon")
		}
	}
	if info.Status.Usable() && !resp.BranchBound {
		resp.Warnings = append(resp.Warnings, "terminal is not bound to a branch")
	}
	if info.Message != "" {
		resp.Warnings = append(resp.Warnings, info.Message)
	}
	return resp
}
