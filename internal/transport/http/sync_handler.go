package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "poscore/internal/errors"
	"poscore/internal/exporter"
	api "poscore/pkg/contracts/api/v1"
	"poscore/pkg/contracts/domain"
	"poscore/pkg/contracts/events"
)

// exportLimit caps the rows of one dead-letter export.
const exportLimit = 10000

// SyncController is the sync worker as seen by the HTTP layer.
type SyncController interface {
	Status() events.SyncStatus
	TriggerNow()
}

// DeadLetterSource lists records excluded from delivery.
type DeadLetterSource interface {
	DeadLetters(ctx context.Context, limit, offset int) ([]domain.SyncRecord, error)
	DeadLetterCount(ctx context.Context) (int, error)
}

// SyncHandler serves sync status and dead letters
type SyncHandler struct {
	worker SyncController
	queue  DeadLetterSource
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(worker SyncController, queue DeadLetterSource, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		worker: worker,
		queue:  queue,
		logger: logger.With(slog.String("handler", "sync")),
		now:    time.Now,
	}
}

// Routes returns the sync routes. run is wrapped by throttle when non-nil.
func (h *SyncHandler) Routes(throttle func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Get("/dead-letters", h.DeadLetters)
	r.Get("/dead-letters/export", h.Export)
	if throttle != nil {
		r.With(throttle).Post("/run", h.Run)
	} else {
		r.Post("/run", h.Run)
	}
	return r
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.worker.Status())
}

// Run handles POST /api/sync/run. The cycle runs on the worker; the
// response only acknowledges the trigger.
func (h *SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.worker.TriggerNow()
	h.logger.InfoContext(r.Context(), "manual sync triggered")
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, api.SyncRunResponse{Triggered: true, Message: "sync cycle scheduled"})
}

// DeadLetters handles GET /api/sync/dead-letters
func (h *SyncHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	recs, err := h.queue.DeadLetters(r.Context(), limit, offset)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	total, err := h.queue.DeadLetterCount(r.Context())
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}
	if recs == nil {
		recs = []domain.SyncRecord{}
	}
	render.JSON(w, r, api.DeadLettersResponse{Records: recs, Total: total})
}

// Export handles GET /api/sync/dead-letters/export?format=xlsx|csv
func (h *SyncHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := exporter.FormatXLSX
	switch r.URL.Query().Get("format") {
	case "", string(exporter.FormatXLSX):
	case string(exporter.FormatCSV):
		format = exporter.FormatCSV
	default:
		apperrors.WriteError(w, r, h.logger, apperrors.NewProblem(http.StatusBadRequest,
			apperrors.TypeInvalidRequest, "format must be xlsx or csv"))
		return
	}

	recs, err := h.queue.DeadLetters(r.Context(), exportLimit, 0)
	if err != nil {
		apperrors.WriteError(w, r, h.logger, err)
		return
	}

	now := h.now()
	name := fmt.Sprintf("dead-letters-%s.%s", now.UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := exporter.Write(w, format, recs, now); err != nil {
		// headers are already out; the client sees a truncated file
		h.logger.ErrorContext(r.Context(), "dead-letter export failed",
			slog.String("error", err.Error()),
			slog.Int("records", len(recs)))
		return
	}
	h.logger.InfoContext(r.Context(), "dead letters exported",
		slog.String("format", string(format)),
		slog.Int("records", len(recs)))
}
