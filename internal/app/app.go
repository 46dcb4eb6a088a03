package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"poscore/internal/config"
	"poscore/internal/infrastructure"
	"poscore/internal/license"
	"poscore/internal/outbox"
	"poscore/internal/remote"
	"poscore/internal/security"
	"poscore/internal/services"
	"poscore/internal/store"
	"poscore/internal/tenant"
	handlers "poscore/internal/transport/http"
	ws "poscore/internal/websocket"
	"poscore/internal/worker"
	"poscore/pkg/contracts/events"
)

const (
	VERSION = infrastructure.ServiceVersion
	AppName = "posd - offline point of sale core"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(VERSION))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	OTel     *infrastructure.OTelProviders
	Metrics  *infrastructure.Metrics
	Store    *store.Store
	Tenant   *tenant.Context
	Identity license.MachineIdentity
	License  *license.Manager
	Outbox   *outbox.Outbox
	Worker   *worker.Worker
	Status   *worker.StatusBroadcaster
	Hub      *ws.Hub
	Services *ServiceContainer
	Router   *chi.Mux
	Server   *http.Server

	ready     chan struct{}
	addr      net.Addr
	closers   []func() error
	closeOnce sync.Once
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Products     *services.ProductService
	Staff        *services.StaffService
	Transactions *services.TransactionService
	Health       *services.HealthService
}

// Option overrides a collaborator built by New.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	identity      license.MachineIdentity
	licenseClient license.Client
	syncRemote    worker.Remote
}

// WithLogger uses logger instead of one built from the logging config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMachineIdentity replaces the hardware fingerprint provider.
func WithMachineIdentity(id license.MachineIdentity) Option {
	return func(o *options) { o.identity = id }
}

// WithLicenseClient replaces the HTTP licensing client.
func WithLicenseClient(c license.Client) Option {
	return func(o *options) { o.licenseClient = c }
}

// WithSyncRemote replaces the HTTP ingestion client.
func WithSyncRemote(r worker.Remote) Option {
	return func(o *options) { o.syncRemote = r }
}

// New wires the application. It opens the store and restores the tenant
// and license state; nothing touches the network until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{Config: cfg, ready: make(chan struct{})}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	a.Logger = o.logger
	if a.Logger == nil {
		logger, closeLog, err := infrastructure.NewLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.Logger = logger
		a.closers = append(a.closers, closeLog)
	}

	a.Identity = o.identity
	if a.Identity == nil {
		a.Identity = security.NewProvider(a.Logger)
	}
	machineID := a.Identity.GetMachineID()

	a.Logger.InfoContext(ctx, "Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.String("build_id", BuildID),
		slog.String("machine_id", machineID))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, machineID, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTel = otelProviders
	a.closers = append(a.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return otelProviders.Shutdown(shutdownCtx)
	})
	if a.Metrics, err = infrastructure.NewMetrics(otelProviders.Meter); err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	if err := a.initializeServices(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()

	ok = true
	return a, nil
}

// initializeServices builds the components in dependency order: store,
// tenant, license, outbox, worker, hub, domain services.
func (a *Application) initializeServices(ctx context.Context, o options) error {
	cfg := a.Config

	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	a.Tenant = tenant.New(st.Settings(), a.Logger)
	if _, err := a.Tenant.LoadPersistedContext(ctx); err != nil {
		return fmt.Errorf("failed to load tenant context: %w", err)
	}

	sealer, err := security.NewSealer(cfg.Security.StorageSecret, cfg.Security.ScryptN)
	if err != nil {
		return err
	}

	tokens := remote.NewTokenSource(cfg.Security.DeviceSecret, a.Identity, a.Tenant)
	licenseClient := o.licenseClient
	if licenseClient == nil {
		licenseClient = remote.NewLicenseClient(cfg.License.ServerURL, cfg.License.RequestTimeout, tokens, a.Logger)
	}

	a.License = license.NewManager(licenseClient, st.Settings(), sealer, a.Tenant, a.Identity,
		license.Config{
			DeveloperSecretSHA256: cfg.License.DeveloperSecretSHA256,
			ActivationRate:        cfg.License.ActivationRate,
			ActivationBurst:       cfg.License.ActivationBurst,
		},
		a.Logger,
		license.WithTracer(a.OTel.Tracer),
		license.WithMetrics(a.Metrics),
	)
	if _, err := a.License.LoadPersisted(ctx); err != nil {
		// A corrupted cache leaves the terminal in the Error state; activation
		// overwrites it.
		a.Logger.WarnContext(ctx, "persisted license not restored", slog.String("error", err.Error()))
	}

	a.Outbox = outbox.New(st.Outbox(), a.Logger)

	syncRemote := o.syncRemote
	if syncRemote == nil {
		syncRemote = remote.NewSyncClient(cfg.Sync.RemoteURL, cfg.Sync.DeliveryTimeout, tokens, a.Identity, a.Logger)
	}
	a.Status = worker.NewStatusBroadcaster()
	a.Worker = worker.New(a.Outbox, syncRemote, a.License, a.Status,
		worker.Config{
			Interval:        cfg.Sync.Interval,
			MaxBackoff:      cfg.Sync.MaxBackoff,
			DeliveryTimeout: cfg.Sync.DeliveryTimeout,
			PingTimeout:     cfg.Sync.PingTimeout,
			BatchSize:       cfg.Sync.BatchSize,
			Retention:       cfg.Sync.Retention,
		},
		a.Logger,
		worker.WithTracer(a.OTel.Tracer),
		worker.WithMetrics(a.Metrics),
	)

	a.Hub = ws.NewHub(a.Logger,
		ws.WithMetrics(a.Metrics),
		ws.WithGreeting(a.greeting),
	)

	deps := services.Deps{
		Store:  st,
		Outbox: a.Outbox,
		Tenant: a.Tenant,
		Limits: a.License,
		Logger: a.Logger,
	}
	a.Services = &ServiceContainer{
		Products:     services.NewProductService(deps),
		Staff:        services.NewStaffService(deps, cfg.Security.PINCost),
		Transactions: services.NewTransactionService(deps, decimal.NewFromFloat(cfg.Sales.TaxRate)),
		Health: services.NewHealthService(VERSION, services.HealthDeps{
			Store:   st,
			License: a.License,
			Sync:    a.Worker,
			Hub:     a.Hub,
			Tenant:  a.Tenant,
		}, a.Logger),
	}
	return nil
}

// greeting is the state pushed to every new WebSocket client.
func (a *Application) greeting() []events.Message {
	return []events.Message{
		{Type: events.MessageTypeSyncStatus, Data: a.Worker.Status()},
		{Type: events.MessageTypeLicenseStatus, Data: a.License.Info()},
	}
}

// setupRouter sets up the HTTP router with middleware and routes
func (a *Application) setupRouter() {
	a.Router = handlers.NewRouter(handlers.RouterConfig{
		Health:       handlers.NewHealthHandler(a.Services.Health, a.Logger),
		License:      handlers.NewLicenseHandler(a.License, a.Tenant, a.Hub, a.Logger),
		Tenant:       handlers.NewTenantHandler(a.Tenant, a.Logger),
		Products:     handlers.NewProductHandler(a.Services.Products, a.Logger),
		Staff:        handlers.NewStaffHandler(a.Services.Staff, a.Logger),
		Transactions: handlers.NewTransactionHandler(a.Services.Transactions, a.Logger),
		Sync:         handlers.NewSyncHandler(a.Worker, a.Outbox, a.Logger),
		Guard:        a.License,
		Metrics:      a.OTel.PrometheusHTTP,
		WebSocket:    ws.NewHandler(a.Hub, a.Config.WebSocket, a.Logger),
		Tracer:       a.OTel.Tracer,
		Logger:       a.Logger,
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run starts the sync worker, the license validation loop, the WebSocket
// hub and the HTTP server, and blocks until ctx is cancelled or one of them
// fails. The server is shut down gracefully either way.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.addr = ln.Addr()
	close(a.ready)

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", "http://"+ln.Addr().String()),
		slog.String("license_status", string(a.License.Status())),
		slog.Bool("sync_enabled", a.Config.Sync.Enabled))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Hub.Run(gctx) })
	g.Go(func() error { return a.License.RunValidationLoop(gctx, a.Config.License.ValidationInterval) })
	if a.Config.Sync.Enabled {
		g.Go(func() error { return a.Worker.Run(gctx) })
		g.Go(func() error { return a.forwardSyncStatus(gctx) })
	} else {
		a.Logger.WarnContext(ctx, "cloud sync disabled by configuration")
	}

	g.Go(func() error {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down application")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.Logger.Info("Application shutdown complete")
	return err
}

// forwardSyncStatus pushes every worker status to the WebSocket clients.
func (a *Application) forwardSyncStatus(ctx context.Context) error {
	updates, unsubscribe := a.Status.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, open := <-updates:
			if !open {
				return nil
			}
			a.Hub.BroadcastSyncStatus(s)
		}
	}
}

// Ready is closed once Run is listening.
func (a *Application) Ready() <-chan struct{} { return a.ready }

// Addr returns the listen address. Valid after Ready is closed.
func (a *Application) Addr() net.Addr { return a.addr }

// Close releases the store, telemetry and log file, in reverse order of
// acquisition.
func (a *Application) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
