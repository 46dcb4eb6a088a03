package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	apperrors "poscore/internal/errors"
	"poscore/internal/infrastructure"
	"poscore/internal/security"
	"poscore/internal/tenant"
	"poscore/pkg/contracts/domain"
)

// FeatureCloudSync gates the sync worker.
const FeatureCloudSync = "cloud_sync"

// Plan limit names accepted by WithinLimit.
const (
	LimitEmployees = "employees"
	LimitProducts  = "products"
)

// developerNamespace derives a stable developer business per machine.
var developerNamespace = uuid.MustParse("6f1c1c8e-4f43-4a5e-9f61-0b6c9d2f7a10")

// Client is the remote licensing service.
type Client interface {
	Activate(ctx context.Context, key, machineID string) (domain.ActivationResult, error)
	Validate(ctx context.Context, machineID string) (domain.LicenseInfo, error)
}

// Store persists the sealed license and can wipe the installation.
type Store interface {
	LoadLicense(ctx context.Context) ([]byte, error)
	SaveLicense(ctx context.Context, data []byte) error
	ResetInstallation(ctx context.Context) error
}

// MachineIdentity yields the hardware-derived machine identifier.
type MachineIdentity interface {
	GetMachineID() string
}

// Sealer protects the cached license at rest.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(blob, aad []byte) ([]byte, error)
}

// Config holds the manager's tunables.
type Config struct {
	DeveloperSecretSHA256 string
	ActivationRate        float64
	ActivationBurst       int
}

// Manager owns the license state of this terminal.
type Manager struct {
	client   Client
	store    Store
	sealer   Sealer
	tenant   *tenant.Context
	identity MachineIdentity
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *infrastructure.Metrics
	now      func() time.Time

	// opMu serialises state-changing operations; mu guards info.
	opMu sync.Mutex
	mu   sync.RWMutex
	info domain.LicenseInfo
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTracer sets the tracer used for activation and validation spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics sets the instruments the manager records into.
func WithMetrics(metrics *infrastructure.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a manager in the NotFound state. Call LoadPersisted to
// restore the cached license.
func NewManager(client Client, store Store, sealer Sealer, tc *tenant.Context, identity MachineIdentity, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.ActivationBurst < 1 {
		cfg.ActivationBurst = 1
	}
	limit := rate.Limit(cfg.ActivationRate)
	if cfg.ActivationRate <= 0 {
		limit = rate.Inf
	}

	m := &Manager{
		client:   client,
		store:    store,
		sealer:   sealer,
		tenant:   tc,
		identity: identity,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, cfg.ActivationBurst),
		logger:   logger.With(slog.String("component", "license_manager")),
		tracer:   tracenoop.NewTracerProvider().Tracer(TracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = infrastructure.NoopMetrics()
	}
	m.info = m.notFound()
	return m
}

// Info returns a copy of the current license info.
func (m *Manager) Info() domain.LicenseInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := m.info
	info.Features = slices.Clone(m.info.Features)
	return info
}

// Status returns the current license status.
func (m *Manager) Status() domain.LicenseStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info.Status
}

// LoadPersisted restores the cached license from storage and repairs a
// missing business binding in the tenant context. The tenant context must
// already be loaded.
func (m *Manager) LoadPersisted(ctx context.Context) (domain.LicenseInfo, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.loadPersisted(ctx)
}

// Reload re-reads the tenant context and the cached license from storage,
// picking up an activation or reset made by another process on the same
// database.
func (m *Manager) Reload(ctx context.Context) (domain.LicenseInfo, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if _, err := m.tenant.LoadPersistedContext(ctx); err != nil {
		return m.Info(), err
	}
	return m.loadPersisted(ctx)
}

func (m *Manager) loadPersisted(ctx context.Context) (domain.LicenseInfo, error) {
	info, err := m.loadCache(ctx)
	if err != nil {
		m.setInfo(m.errorInfo("cached license unreadable"))
		m.logAction(ctx, slog.LevelError, "load", "corrupted", slog.String("error", err.Error()))
		return m.Info(), err
	}
	if info == nil {
		m.setInfo(m.notFound())
		m.logAction(ctx, slog.LevelInfo, "load", "not_found")
		return m.Info(), nil
	}

	loaded := *info
	if loaded.Status != domain.LicenseDeveloper && loaded.Status.Usable() && loaded.ExpiredAt(m.now()) {
		loaded.Status = domain.LicenseExpired
		loaded.Message = "license expired"
	}
	m.setInfo(loaded)

	if loaded.BusinessID != nil {
		if _, bound := m.tenant.BusinessID(); !bound {
			if err := m.tenant.SetBusinessContext(ctx, *loaded.BusinessID); err != nil {
				return m.Info(), fmt.Errorf("repair business binding: %w", err)
			}
			m.logAction(ctx, slog.LevelWarn, "load", "business_binding_repaired",
				slog.String("business_id", loaded.BusinessID.String()))
		}
	}

	m.logAction(ctx, slog.LevelInfo, "load", "success", slog.String("status", string(loaded.Status)))
	return m.Info(), nil
}

// ActivateLicense activates key on this machine. On any failure nothing is
// changed.
func (m *Manager) ActivateLicense(ctx context.Context, key string) (domain.LicenseInfo, error) {
	ctx, span := m.startSpan(ctx, "license.activate")
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	key = strings.TrimSpace(key)
	if key == "" {
		err := fmt.Errorf("%w: key cannot be empty", apperrors.ErrInvalidLicenseKey)
		m.finishActivation(ctx, span, "invalid", err)
		return domain.LicenseInfo{}, err
	}

	if !m.limiter.Allow() {
		m.finishActivation(ctx, span, "rate_limited", apperrors.ErrRateLimited)
		return domain.LicenseInfo{}, apperrors.ErrRateLimited
	}

	if security.MatchesDigest(key, m.cfg.DeveloperSecretSHA256) {
		info, err := m.activateDeveloper(ctx)
		m.finishActivation(ctx, span, "developer", err)
		return info, err
	}

	machineID := m.identity.GetMachineID()
	result, err := m.client.Activate(ctx, key, machineID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrDuplicateMachine) && !errors.Is(err, apperrors.ErrInvalidLicenseKey) &&
			!errors.Is(err, apperrors.ErrUnreachable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrActivationFailed, err)
		}
		m.finishActivation(ctx, span, "failed", err)
		return domain.LicenseInfo{}, err
	}

	if err := m.checkBusiness(result.BusinessID); err != nil {
		m.finishActivation(ctx, span, "business_mismatch", err)
		return domain.LicenseInfo{}, err
	}

	now := m.now().UTC()
	status := domain.LicenseValid
	if result.Trial {
		status = domain.LicenseTrial
	}
	businessID := result.BusinessID
	info := domain.LicenseInfo{
		Status:         status,
		MachineID:      machineID,
		KeyHint:        MaskLicenseKey(key),
		BusinessID:     &businessID,
		SubscriptionID: result.SubscriptionID,
		PlanName:       result.PlanName,
		ExpiresAt:      result.ExpiresAt,
		PlanLimits:     result.PlanLimits,
		ActivatedAt:    now,
		LastCheckedAt:  now,
	}
	if info.ExpiredAt(now) {
		info.Status = domain.LicenseExpired
		info.Message = "license expired"
	}

	if err := m.commit(ctx, info); err != nil {
		m.finishActivation(ctx, span, "persist_failed", err)
		return domain.LicenseInfo{}, err
	}

	m.finishActivation(ctx, span, "success", nil,
		slog.String("status", string(info.Status)),
		slog.String("plan", info.PlanName),
		slog.String("business_id", businessID.String()))
	return m.Info(), nil
}

func (m *Manager) activateDeveloper(ctx context.Context) (domain.LicenseInfo, error) {
	machineID := m.identity.GetMachineID()

	businessID, bound := m.tenant.BusinessID()
	if !bound {
		if cached := m.Info().BusinessID; cached != nil {
			businessID = *cached
		} else {
			businessID = uuid.NewSHA1(developerNamespace, []byte(machineID))
		}
	}

	now := m.now().UTC()
	info := domain.LicenseInfo{
		Status:        domain.LicenseDeveloper,
		MachineID:     machineID,
		BusinessID:    &businessID,
		PlanName:      "developer",
		ActivatedAt:   now,
		LastCheckedAt: now,
		PlanLimits:    domain.PlanLimits{CloudSyncEnabled: true},
	}
	if err := m.commit(ctx, info); err != nil {
		return domain.LicenseInfo{}, err
	}
	return m.Info(), nil
}

// ValidateLicense re-checks the license locally and with the licensing
// service. When the service cannot be reached a cached Valid or Trial
// license is kept until its local expiry.
func (m *Manager) ValidateLicense(ctx context.Context) (domain.LicenseInfo, error) {
	ctx, span := m.startSpan(ctx, "license.validate")
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	current := m.Info()
	now := m.now().UTC()

	switch current.Status {
	case domain.LicenseDeveloper:
		m.recordValidation(ctx, current.Status)
		return current, nil
	case domain.LicenseNotFound:
		m.recordValidation(ctx, current.Status)
		return current, apperrors.ErrLicenseNotFound
	}

	locallyExpired := current.ExpiredAt(now)

	remote, err := m.client.Validate(ctx, m.identity.GetMachineID())
	if err != nil {
		span.RecordError(err)
		return m.validationFallback(ctx, current, locallyExpired, err)
	}

	if remote.BusinessID != nil && current.BusinessID != nil && *remote.BusinessID != *current.BusinessID {
		m.logAction(ctx, slog.LevelError, "validate", "business_mismatch",
			slog.String("remote_business_id", remote.BusinessID.String()))
		return current, apperrors.ErrBusinessMismatch
	}

	next := current
	next.Status = remote.Status
	next.ExpiresAt = remote.ExpiresAt
	next.PlanLimits = remote.PlanLimits
	next.LastCheckedAt = now
	next.Message = remote.Message
	if remote.PlanName != "" {
		next.PlanName = remote.PlanName
	}
	if remote.SubscriptionID != "" {
		next.SubscriptionID = remote.SubscriptionID
	}
	if next.Status.Usable() && next.ExpiredAt(now) {
		next.Status = domain.LicenseExpired
		next.Message = "license expired"
	}
	if !isRemoteStatus(next.Status) {
		next.Status = domain.LicenseError
	}

	if next.Status != current.Status {
		m.logAction(ctx, slog.LevelInfo, "validate", "status_changed",
			slog.String("from", string(current.Status)),
			slog.String("to", string(next.Status)))
	}

	if err := m.commit(ctx, next); err != nil {
		return current, err
	}
	m.recordValidation(ctx, next.Status)

	if next.Status == domain.LicenseExpired {
		return m.Info(), apperrors.ErrLicenseExpired
	}
	return m.Info(), nil
}

func (m *Manager) validationFallback(ctx context.Context, current domain.LicenseInfo, locallyExpired bool, cause error) (domain.LicenseInfo, error) {
	if errors.Is(cause, apperrors.ErrInvalidLicenseKey) {
		revoked := current
		revoked.Status = domain.LicenseError
		revoked.Message = "license revoked by licensing service"
		revoked.LastCheckedAt = m.now().UTC()
		if err := m.commit(ctx, revoked); err != nil {
			return current, err
		}
		m.recordValidation(ctx, revoked.Status)
		m.logAction(ctx, slog.LevelError, "validate", "revoked", slog.String("error", cause.Error()))
		return m.Info(), cause
	}

	if locallyExpired && current.Status != domain.LicenseExpired {
		expired := current
		expired.Status = domain.LicenseExpired
		expired.Message = "license expired"
		if err := m.commit(ctx, expired); err != nil {
			return current, err
		}
		current = expired
	}

	m.recordValidation(ctx, current.Status)
	m.logAction(ctx, slog.LevelWarn, "validate", "using_cached_status",
		slog.String("status", string(current.Status)),
		slog.String("error", cause.Error()))

	if current.Status == domain.LicenseExpired {
		return m.Info(), apperrors.ErrLicenseExpired
	}
	return m.Info(), nil
}

// BindToBranch binds this terminal to a branch of the licensed business.
// It can succeed only once per installation.
func (m *Manager) BindToBranch(ctx context.Context, branchID uuid.UUID, branchName string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.tenant.IsBranchBound() {
		m.logAction(ctx, slog.LevelWarn, "bind_branch", "rejected",
			slog.String("branch_id", branchID.String()))
		return apperrors.ErrBranchAlreadyBound
	}
	if _, bound := m.tenant.BusinessID(); !bound {
		return apperrors.ErrBusinessNotBound
	}

	if err := m.tenant.SetBranchContext(ctx, branchID, branchName); err != nil {
		return err
	}

	m.logAction(ctx, slog.LevelInfo, "bind_branch", "success",
		slog.String("branch_id", branchID.String()),
		slog.String("branch_name", branchName))
	return nil
}

// ResetLicense clears the cached license and the tenant binding in one
// store write, then reloads the tenant context from storage.
func (m *Manager) ResetLicense(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.ResetInstallation(ctx); err != nil {
		m.logAction(ctx, slog.LevelError, "reset", "failed", slog.String("error", err.Error()))
		return err
	}
	m.setInfo(m.notFound())

	if _, err := m.tenant.LoadPersistedContext(ctx); err != nil {
		return fmt.Errorf("reload tenant context: %w", err)
	}

	m.logAction(ctx, slog.LevelWarn, "reset", "success")
	return nil
}

// IsFeatureEnabled reports whether the current plan enables name.
func (m *Manager) IsFeatureEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.info.Status {
	case domain.LicenseDeveloper:
		return true
	case domain.LicenseValid, domain.LicenseTrial:
	default:
		return false
	}

	if name == FeatureCloudSync {
		return m.info.CloudSyncEnabled
	}
	return slices.Contains(m.info.Features, name)
}

// WithinLimit reports whether current is below the named plan limit. A
// limit of zero or less is unlimited; unknown names are unlimited.
func (m *Manager) WithinLimit(limit string, current int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.info.Status == domain.LicenseDeveloper {
		return true
	}

	var ceiling int
	switch limit {
	case LimitEmployees:
		ceiling = m.info.MaxEmployeeCount
	case LimitProducts:
		ceiling = m.info.MaxProductCount
	}
	return ceiling <= 0 || current < ceiling
}

// RunValidationLoop reloads the persisted state and re-validates every
// interval until ctx is cancelled. Failures are logged and never stop the
// loop.
func (m *Manager) RunValidationLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ctx := infrastructure.EnsureTraceID(ctx)
			if _, err := m.Reload(ctx); err != nil {
				m.logAction(ctx, slog.LevelWarn, "validate_loop", "reload_failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := m.ValidateLicense(ctx); err != nil && !errors.Is(err, apperrors.ErrLicenseNotFound) {
				m.logAction(ctx, slog.LevelWarn, "validate_loop", "degraded", slog.String("error", err.Error()))
			}
		}
	}
}

// checkBusiness refuses a license for another business once a branch is
// bound.
func (m *Manager) checkBusiness(businessID uuid.UUID) error {
	current, bound := m.tenant.BusinessID()
	if bound && current != businessID && m.tenant.IsBranchBound() {
		return apperrors.ErrBusinessMismatch
	}
	return nil
}

// commit persists info, binds its business and then publishes it in memory.
// A failed business binding restores the previous cache.
func (m *Manager) commit(ctx context.Context, info domain.LicenseInfo) error {
	previous, err := m.store.LoadLicense(ctx)
	if err != nil {
		return fmt.Errorf("read license cache: %w", err)
	}
	if err := m.saveCache(ctx, info); err != nil {
		return err
	}

	if info.BusinessID != nil {
		if current, bound := m.tenant.BusinessID(); !bound || current != *info.BusinessID {
			if err := m.tenant.SetBusinessContext(ctx, *info.BusinessID); err != nil {
				if restoreErr := m.store.SaveLicense(ctx, previous); restoreErr != nil {
					m.logAction(ctx, slog.LevelError, "commit", "restore_failed", slog.String("error", restoreErr.Error()))
				}
				if errors.Is(err, apperrors.ErrBusinessLocked) {
					return apperrors.ErrBusinessMismatch
				}
				return err
			}
		}
	}

	m.setInfo(info)
	return nil
}

func (m *Manager) setInfo(info domain.LicenseInfo) {
	m.mu.Lock()
	m.info = info
	m.mu.Unlock()
}

func (m *Manager) notFound() domain.LicenseInfo {
	return domain.LicenseInfo{
		Status:    domain.LicenseNotFound,
		MachineID: m.identity.GetMachineID(),
		Message:   "no license activated",
	}
}

func (m *Manager) errorInfo(msg string) domain.LicenseInfo {
	return domain.LicenseInfo{
		Status:    domain.LicenseError,
		MachineID: m.identity.GetMachineID(),
		Message:   msg,
	}
}

func isRemoteStatus(s domain.LicenseStatus) bool {
	switch s {
	case domain.LicenseValid, domain.LicenseTrial, domain.LicenseExpired:
		return true
	}
	return false
}
