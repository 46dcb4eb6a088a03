package errors

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem types following RFC 7807
const (
	TypeValidation     = "/errors/validation"
	TypeNotFound       = "/errors/not-found"
	TypeConflict       = "/errors/conflict"
	TypeRateLimit      = "/errors/rate-limit"
	TypeInternal       = "/errors/internal"
	TypeServiceDown    = "/errors/service-unavailable"
	TypeLicense        = "/errors/license"
	TypeBinding        = "/errors/binding"
	TypeNotConfigured  = "/errors/tenant/not-configured"
	TypeLimitReached   = "/errors/license/limit-reached"
	TypeInvalidRequest = "/errors/invalid-request"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
	Fields   any    `json:"fields,omitempty"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// NewProblem creates a problem with the standard title for status.
func NewProblem(status int, problemType, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:   problemType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// ErrorToProblem maps err onto a problem response.
func ErrorToProblem(err error) *ProblemDetails {
	var pd *ProblemDetails
	if errors.As(err, &pd) {
		return pd
	}

	status, problemType := classify(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	return NewProblem(status, problemType, detail)
}

// Error lets a ProblemDetails travel as an error.
func (pd *ProblemDetails) Error() string {
	return pd.Detail
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBranchAlreadyBound),
		errors.Is(err, ErrBusinessLocked),
		errors.Is(err, ErrBusinessMismatch):
		return http.StatusConflict, TypeBinding
	case errors.Is(err, ErrDuplicateMachine):
		return http.StatusConflict, TypeLicense
	case errors.Is(err, ErrInvalidLicenseKey),
		errors.Is(err, ErrLicenseExpired),
		errors.Is(err, ErrActivationFailed):
		return http.StatusUnprocessableEntity, TypeLicense
	case errors.Is(err, ErrLicenseNotFound), errors.Is(err, ErrBusinessNotBound):
		return http.StatusPreconditionFailed, TypeLicense
	case errors.Is(err, ErrTenantNotConfigured):
		return http.StatusPreconditionFailed, TypeNotConfigured
	case errors.Is(err, ErrLimitReached):
		return http.StatusForbidden, TypeLimitReached
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, TypeRateLimit
	case errors.Is(err, ErrUnreachable):
		return http.StatusServiceUnavailable, TypeServiceDown
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrStaffNotFound):
		return http.StatusNotFound, TypeNotFound
	case errors.Is(err, ErrInvalidEntity), errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrPayloadRequired), errors.Is(err, ErrInvalidPIN):
		return http.StatusBadRequest, TypeValidation
	default:
		return http.StatusInternalServerError, TypeInternal
	}
}

// WriteError logs err and renders it as a problem response.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	problem := ErrorToProblem(err)
	problem.Instance = r.URL.Path
	problem.TraceID = middleware.GetReqID(r.Context())

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", problem.Status))

	RenderProblem(w, r, problem)
}

// RenderProblem writes pd as the response body with its status code.
func RenderProblem(w http.ResponseWriter, r *http.Request, pd *ProblemDetails) {
	_ = render.Render(w, r, pd)
}
