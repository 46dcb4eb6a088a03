package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"poscore/internal/tenant"
	"poscore/pkg/contracts"
	"poscore/pkg/contracts/domain"
	"poscore/pkg/contracts/events"
)

// Pinger checks that the local store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LicenseReporter exposes the current license outcome.
type LicenseReporter interface {
	Info() domain.LicenseInfo
}

// SyncReporter exposes the latest sync cycle status.
type SyncReporter interface {
	Status() events.SyncStatus
}

// ClientCounter reports connected WebSocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	store     Pinger
	license   LicenseReporter
	sync      SyncReporter
	hub       ClientCounter
	tenant    *tenant.Context
	startTime time.Time
	logger    *slog.Logger
	now       func() time.Time
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthDeps are the components a readiness check inspects. Nil members
// are reported as not ready.
type HealthDeps struct {
	Store   Pinger
	License LicenseReporter
	Sync    SyncReporter
	Hub     ClientCounter
	Tenant  *tenant.Context
	Now     func() time.Time
}

// NewHealthService creates a new health service.
func NewHealthService(version string, d HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &HealthService{
		version:   version,
		store:     d.Store,
		license:   d.License,
		sync:      d.Sync,
		hub:       d.Hub,
		tenant:    d.Tenant,
		startTime: now(),
		logger:    logger.With(slog.String("component", "health-service")),
		now:       now,
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: hs.now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime":     hs.now().Sub(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: hs.now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"store":   hs.checkStoreHealth(ctx),
			"license": hs.checkLicenseHealth(),
			"tenant":  hs.checkTenantHealth(),
			"sync":    hs.checkSyncHealth(),
		},
	}

	for name, sh := range status.Services {
		if sh.Status != "ready" && sh.Status != "degraded" {
			status.Status = "not_ready"
			hs.logger.DebugContext(ctx, "readiness check failed",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() map[string]any {
	clients := 0
	if hs.hub != nil {
		clients = hs.hub.ClientCount()
	}
	build := contracts.GetVersionInfo()
	return map[string]any{
		"version":           hs.version,
		"api_version":       build.APIVersion,
		"build_time":        build.BuildTime,
		"git_commit":        build.GitCommit,
		"go_version":        runtime.Version(),
		"os":                runtime.GOOS,
		"arch":              runtime.GOARCH,
		"uptime":            hs.now().Sub(hs.startTime).Seconds(),
		"start_time":        hs.startTime.Format(time.RFC3339),
		"websocket_clients": clients,
	}
}

func (hs *HealthService) checkStoreHealth(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: "store not initialized"}
	}
	if err := hs.store.Ping(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: "store unavailable: " + err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkLicenseHealth() ServiceHealth {
	if hs.license == nil {
		return ServiceHealth{Status: "not_ready", Message: "license manager not initialized"}
	}
	info := hs.license.Info()
	if !info.Status.Usable() {
		return ServiceHealth{Status: "not_ready", Message: "license " + string(info.Status)}
	}
	if info.Message != "" {
		return ServiceHealth{Status: "degraded", Message: info.Message}
	}
	return ServiceHealth{Status: "ready", Message: string(info.Status)}
}

func (hs *HealthService) checkTenantHealth() ServiceHealth {
	if hs.tenant == nil {
		return ServiceHealth{Status: "not_ready", Message: "tenant context not initialized"}
	}
	if !hs.tenant.IsFullyConfigured() {
		return ServiceHealth{Status: "not_ready", Message: "terminal not bound to a business and branch"}
	}
	return ServiceHealth{Status: "ready"}
}

// checkSyncHealth never blocks readiness: an offline terminal keeps selling.
func (hs *HealthService) checkSyncHealth() ServiceHealth {
	if hs.sync == nil {
		return ServiceHealth{Status: "degraded", Message: "sync worker not running"}
	}
	s := hs.sync.Status()
	if !s.IsOnline {
		return ServiceHealth{Status: "degraded", Message: s.Message}
	}
	return ServiceHealth{Status: "ready", Message: s.Message}
}
