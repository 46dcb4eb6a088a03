package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"poscore/internal/tenant"
	api "poscore/pkg/contracts/api/v1"
)

// TenantSnapshotter exposes the current tenant context.
type TenantSnapshotter interface {
	Snapshot() tenant.State
}

// TenantHandler serves the tenant context of the terminal
type TenantHandler struct {
	tenant TenantSnapshotter
	logger *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tc TenantSnapshotter, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{
		tenant: tc,
		logger: logger.With(slog.String("handler", "tenant")),
	}
}

// Get handles GET /api/tenant
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, tenantResponse(h.tenant.Snapshot()))
}

func tenantResponse(s tenant.State) api.TenantResponse {
	resp := api.TenantResponse{
		StaffName:       s.StaffName,
		FullyConfigured: s.FullyConfigured(),
	}
	if s.BusinessID != nil {
		resp.BusinessID = s.BusinessID.String()
	}
	if b, ok := tenant.BranchOf(s.Branch); ok {
		boundAt := b.BoundAt
		resp.BranchID = b.ID.String()
		resp.BranchName = b.Name
		resp.BranchBoundAt = &boundAt
	}
	if s.StaffID != nil {
		resp.StaffID = s.StaffID.String()
	}
	return resp
}
