// Package worker drains the sync outbox to the remote backend. A single
// goroutine polls on an interval, delivers records one at a time and
// reports its status at every cycle boundary.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	apperrors "poscore/internal/errors"
	"poscore/internal/infrastructure"
	"poscore/pkg/contracts/domain"
	"poscore/pkg/contracts/events"
)

// TracerName names the tracer of this package.
const TracerName = "sync-worker"

// featureCloudSync is the plan feature that enables delivery.
const featureCloudSync = "cloud_sync"

// Queue is the outbox as seen by the worker.
type Queue interface {
	ReclaimInProgress(ctx context.Context) (int, error)
	GetPendingRecords(ctx context.Context, limit int) ([]domain.SyncRecord, error)
	Claim(ctx context.Context, id uuid.UUID) error
	MarkSynced(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) (domain.SyncRecord, error)
	PendingCount(ctx context.Context) (int, error)
	DeadLetterCount(ctx context.Context) (int, error)
	Purge(ctx context.Context, retention time.Duration) (int, error)
}

// Remote is the ingestion endpoint.
type Remote interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, rec domain.SyncRecord) error
}

// FeatureGate reports plan features.
type FeatureGate interface {
	IsFeatureEnabled(name string) bool
}

// Config holds the worker's timing and paging.
type Config struct {
	Interval        time.Duration
	MaxBackoff      time.Duration
	DeliveryTimeout time.Duration
	PingTimeout     time.Duration
	BatchSize       int
	Retention       time.Duration
}

// Worker is the outbox drain loop.
type Worker struct {
	queue   Queue
	remote  Remote
	gate    FeatureGate
	status  *StatusBroadcaster
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.Metrics
	now     func() time.Time
	trigger chan struct{}

	// cycleMu keeps cycles from overlapping.
	cycleMu  sync.Mutex
	failures int
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithTracer sets the tracer used for cycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) { w.tracer = t }
}

// WithMetrics sets the instruments the worker records into.
func WithMetrics(m *infrastructure.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a worker. status receives a snapshot after every cycle.
func New(queue Queue, remote Remote, gate FeatureGate, status *StatusBroadcaster, cfg Config, logger *slog.Logger, opts ...Option) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}

	w := &Worker{
		queue:   queue,
		remote:  remote,
		gate:    gate,
		status:  status,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "sync_worker")),
		tracer:  tracenoop.NewTracerProvider().Tracer(TracerName),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = infrastructure.NoopMetrics()
	}
	return w
}

// Run polls until ctx is cancelled. Records left InProgress by an earlier
// run are returned to Pending first, then the first cycle starts
// immediately. Only one process may Run against a database.
func (w *Worker) Run(ctx context.Context) error {
	reclaimed, err := w.queue.ReclaimInProgress(ctx)
	if err != nil {
		return fmt.Errorf("reclaim in-progress records: %w", err)
	}
	w.logger.InfoContext(ctx, "sync worker started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Int("reclaimed", reclaimed))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return nil
		case <-timer.C:
		case <-w.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := w.RunCycle(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "sync cycle failed", slog.String("error", err.Error()))
		}
		timer.Reset(w.nextDelay())
	}
}

// TriggerNow requests an immediate cycle. Requests made while one is
// pending are coalesced.
func (w *Worker) TriggerNow() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Status returns the status published by the last cycle.
func (w *Worker) Status() events.SyncStatus {
	return w.status.Latest()
}

// RunCycle performs one drain cycle and publishes its status. It never
// reclaims, so records claimed by another worker are skipped.
func (w *Worker) RunCycle(ctx context.Context) (events.SyncStatus, error) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := w.tracer.Start(ctx, "sync.cycle")
	defer span.End()

	start := time.Now()
	status, err := w.cycle(ctx)
	w.metrics.SyncCycleDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return status, err
		}
		status.Message = err.Error()
	}
	span.SetAttributes(
		attribute.Bool("sync.online", status.IsOnline),
		attribute.Int("sync.pending", status.PendingCount),
	)

	w.fillCounts(ctx, &status)
	status.CycleAt = w.now().UTC()
	w.status.Publish(status)
	return status, err
}

func (w *Worker) cycle(ctx context.Context) (events.SyncStatus, error) {
	if !w.gate.IsFeatureEnabled(featureCloudSync) {
		return events.SyncStatus{Message: "cloud sync not enabled for this license"}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, w.pingTimeout())
	err := w.remote.Ping(pingCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return events.SyncStatus{}, ctx.Err()
		}
		return w.offline(ctx, err), nil
	}
	w.failures = 0

	delivered, failed, err := w.drain(ctx)
	if errors.Is(err, apperrors.ErrUnreachable) {
		return w.offline(ctx, err), nil
	}
	if err != nil {
		return events.SyncStatus{IsOnline: true}, err
	}

	if purged, err := w.queue.Purge(ctx, w.cfg.Retention); err != nil {
		w.logger.WarnContext(ctx, "purge of completed records failed", slog.String("error", err.Error()))
	} else if purged > 0 {
		w.logger.DebugContext(ctx, "purged completed records", slog.Int("count", purged))
	}

	msg := "up to date"
	if delivered > 0 || failed > 0 {
		msg = fmt.Sprintf("delivered %d, failed %d", delivered, failed)
		w.logger.InfoContext(ctx, "sync cycle completed",
			slog.String("action", "drain"),
			slog.Int("delivered", delivered),
			slog.Int("failed", failed))
	}
	return events.SyncStatus{IsOnline: true, Message: msg}, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeFailed
)

// drain delivers every eligible record once. Records that fail stay
// eligible, so later pages are fetched past those already attempted.
func (w *Worker) drain(ctx context.Context) (delivered, failed int, err error) {
	attempted := make(map[uuid.UUID]struct{})

	for {
		limit := w.cfg.BatchSize + len(attempted)
		records, err := w.queue.GetPendingRecords(ctx, limit)
		if err != nil {
			return delivered, failed, fmt.Errorf("load pending records: %w", err)
		}

		fresh := 0
		for _, rec := range records {
			if _, seen := attempted[rec.ID]; seen {
				continue
			}
			fresh++
			attempted[rec.ID] = struct{}{}

			result, err := w.deliver(ctx, rec)
			switch result {
			case outcomeDelivered:
				delivered++
			case outcomeFailed:
				failed++
			}
			if err != nil {
				return delivered, failed, err
			}
		}

		if fresh == 0 || len(records) < limit {
			return delivered, failed, nil
		}
	}
}

// deliver claims and pushes one record. A non-nil error stops the cycle:
// parent cancellation leaves the record InProgress until the next Run,
// ErrUnreachable ends the cycle offline.
func (w *Worker) deliver(ctx context.Context, rec domain.SyncRecord) (outcome, error) {
	if err := w.queue.Claim(ctx, rec.ID); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			return outcomeSkipped, nil
		}
		return outcomeSkipped, fmt.Errorf("claim %s: %w", rec.ID, err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
	pushErr := w.remote.Push(attemptCtx, rec)
	cancel()

	if pushErr == nil {
		if err := w.queue.MarkSynced(ctx, rec.ID); err != nil {
			return outcomeSkipped, fmt.Errorf("mark %s synced: %w", rec.ID, err)
		}
		w.recordDelivery(ctx, "delivered")
		return outcomeDelivered, nil
	}

	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "delivery interrupted, record left in progress",
			slog.String("record_id", rec.ID.String()))
		return outcomeSkipped, ctx.Err()
	}

	msg := pushErr.Error()
	if errors.Is(pushErr, context.DeadlineExceeded) {
		msg = fmt.Sprintf("delivery timed out after %s", w.cfg.DeliveryTimeout)
	}
	if _, err := w.queue.MarkFailed(ctx, rec.ID, msg); err != nil {
		return outcomeSkipped, fmt.Errorf("mark %s failed: %w", rec.ID, err)
	}
	w.recordDelivery(ctx, "failed")

	w.logger.WarnContext(ctx, "delivery failed",
		slog.String("record_id", rec.ID.String()),
		slog.String("entity_type", rec.EntityType),
		slog.Int("retry_count", rec.RetryCount+1),
		slog.String("error", msg))

	if errors.Is(pushErr, apperrors.ErrUnreachable) {
		return outcomeFailed, pushErr
	}
	return outcomeFailed, nil
}

func (w *Worker) offline(ctx context.Context, cause error) events.SyncStatus {
	w.failures++
	w.logger.WarnContext(ctx, "sync remote unreachable",
		slog.Int("consecutive_failures", w.failures),
		slog.Duration("next_attempt_in", w.nextDelayLocked()),
		slog.String("error", cause.Error()))
	return events.SyncStatus{IsOnline: false, Message: "offline: " + cause.Error()}
}

func (w *Worker) fillCounts(ctx context.Context, s *events.SyncStatus) {
	if n, err := w.queue.PendingCount(ctx); err == nil {
		s.PendingCount = n
		w.metrics.SyncPendingRecords.Record(ctx, int64(n))
	}
	if n, err := w.queue.DeadLetterCount(ctx); err == nil {
		s.DeadLetterCount = n
		w.metrics.SyncDeadLetters.Record(ctx, int64(n))
	}
}

func (w *Worker) recordDelivery(ctx context.Context, outcome string) {
	w.metrics.SyncDeliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (w *Worker) nextDelay() time.Duration {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()
	return w.nextDelayLocked()
}

// nextDelayLocked doubles the interval per consecutive offline cycle up to
// MaxBackoff.
func (w *Worker) nextDelayLocked() time.Duration {
	return Backoff(w.cfg.Interval, w.cfg.MaxBackoff, w.failures)
}

func (w *Worker) pingTimeout() time.Duration {
	if w.cfg.PingTimeout > 0 {
		return w.cfg.PingTimeout
	}
	return w.cfg.DeliveryTimeout
}

// Backoff returns interval * 2^failures capped at ceiling.
func Backoff(interval, ceiling time.Duration, failures int) time.Duration {
	d := interval
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	return min(d, ceiling)
}
