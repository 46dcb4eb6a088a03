// Package outbox is the queue of local mutations awaiting delivery to the
// remote backend. Enqueue runs synchronously with every domain write; the
// sync worker is the only caller of the status transitions.
package outbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

// Writer appends records. Both the store and a store transaction satisfy it.
type Writer interface {
	Insert(ctx context.Context, rec domain.SyncRecord) error
}

// Repository is the persistence the outbox needs.
type Repository interface {
	Writer
	Get(ctx context.Context, id uuid.UUID) (domain.SyncRecord, error)
	Deliverable(ctx context.Context, maxRetries, limit int) ([]domain.SyncRecord, error)
	DeadLetters(ctx context.Context, maxRetries, limit, offset int) ([]domain.SyncRecord, error)
	CountDeliverable(ctx context.Context, maxRetries int) (int, error)
	CountDeadLetters(ctx context.Context, maxRetries int) (int, error)
	Claim(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error)
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error)
	ReclaimInProgress(ctx context.Context) (int, error)
	PurgeCompleted(ctx context.Context, cutoff time.Time) (int, error)
}

// Entry describes one mutation to enqueue. Payload is the already
// tenant-stamped entity snapshot; it may be nil only for Delete.
type Entry struct {
	EntityType string
	EntityID   string
	Operation  domain.SyncOperation
	Payload    any
	Scope      domain.TenantScope
}

// Outbox wraps the repository with validation, identity and logging.
type Outbox struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Outbox) { o.now = now }
}

// New creates an outbox over repo.
func New(repo Repository, logger *slog.Logger, opts ...Option) *Outbox {
	o := &Outbox{
		repo:   repo,
		logger: logger.With(slog.String("component", "outbox")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue appends a record outside any caller transaction.
func (o *Outbox) Enqueue(ctx context.Context, e Entry) (domain.SyncRecord, error) {
	return o.EnqueueWith(ctx, o.repo, e)
}

// EnqueueWith appends a record through w, normally the repository of the
// transaction carrying the domain write.
func (o *Outbox) EnqueueWith(ctx context.Context, w Writer, e Entry) (domain.SyncRecord, error) {
	if guard := ValidateEntry(e); !guard.Allowed {
		if e.EntityType == "" || e.EntityID == "" {
			return domain.SyncRecord{}, fmt.Errorf("enqueue: %w: %s", apperrors.ErrInvalidEntity, guard.Reason)
		}
		if !e.Operation.Valid() {
			return domain.SyncRecord{}, fmt.Errorf("enqueue: %w: %s", apperrors.ErrInvalidOperation, guard.Reason)
		}
		return domain.SyncRecord{}, fmt.Errorf("enqueue: %w: %s", apperrors.ErrPayloadRequired, guard.Reason)
	}

	var payload json.RawMessage
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return domain.SyncRecord{}, fmt.Errorf("enqueue: marshal payload: %w", err)
		}
		payload = data
	}

	rec := domain.SyncRecord{
		ID:          uuid.New(),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Operation:   e.Operation,
		Payload:     payload,
		PayloadHash: HashPayload(payload),
		BusinessID:  e.Scope.BusinessID,
		BranchID:    e.Scope.BranchID,
		Status:      domain.SyncPending,
		CreatedAt:   o.now().UTC(),
	}

	if err := w.Insert(ctx, rec); err != nil {
		return domain.SyncRecord{}, fmt.Errorf("enqueue: %w", err)
	}

	o.logger.DebugContext(ctx, "sync record enqueued",
		slog.String("action", "enqueue"),
		slog.String("record_id", rec.ID.String()),
		slog.String("entity_type", rec.EntityType),
		slog.String("entity_id", rec.EntityID),
		slog.String("operation", string(rec.Operation)))

	return rec, nil
}

// GetPendingRecords returns up to limit Pending or Failed records below the
// retry threshold, oldest first.
func (o *Outbox) GetPendingRecords(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	return o.repo.Deliverable(ctx, domain.MaxSyncRetries, limit)
}

// Claim moves a record to InProgress ahead of a delivery attempt.
func (o *Outbox) Claim(ctx context.Context, id uuid.UUID) error {
	ok, err := o.repo.Claim(ctx, id, domain.MaxSyncRetries)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	rec, err := o.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("claim: %w: %s", apperrors.ErrInvalidTransition, CanClaim(rec).Reason)
}

// MarkSynced completes an InProgress record. Calling it again on a
// Completed record is a no-op that leaves syncedAt unchanged.
func (o *Outbox) MarkSynced(ctx context.Context, id uuid.UUID) error {
	ok, err := o.repo.MarkSynced(ctx, id, o.now().UTC())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	rec, err := o.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == domain.SyncCompleted {
		o.logger.DebugContext(ctx, "record already synced",
			slog.String("action", "mark_synced"),
			slog.String("result", "noop"),
			slog.String("record_id", id.String()))
		return nil
	}
	return fmt.Errorf("mark synced: %w: %s", apperrors.ErrInvalidTransition, CanFinish(rec).Reason)
}

// MarkFailed fails an InProgress record, bumps its retry count and keeps
// message for diagnostics. The updated record is returned.
func (o *Outbox) MarkFailed(ctx context.Context, id uuid.UUID, message string) (domain.SyncRecord, error) {
	ok, err := o.repo.MarkFailed(ctx, id, message)
	if err != nil {
		return domain.SyncRecord{}, err
	}

	rec, err := o.repo.Get(ctx, id)
	if err != nil {
		return domain.SyncRecord{}, err
	}
	if !ok {
		return rec, fmt.Errorf("mark failed: %w: %s", apperrors.ErrInvalidTransition, CanFinish(rec).Reason)
	}

	if rec.DeadLettered() {
		o.logger.WarnContext(ctx, "sync record dead-lettered",
			slog.String("action", "mark_failed"),
			slog.String("result", "dead_letter"),
			slog.String("record_id", id.String()),
			slog.String("entity_type", rec.EntityType),
			slog.String("entity_id", rec.EntityID),
			slog.Int("retry_count", rec.RetryCount),
			slog.String("error", message))
	}
	return rec, nil
}

// ReclaimInProgress returns records orphaned by a crash or cancellation to
// Pending.
func (o *Outbox) ReclaimInProgress(ctx context.Context) (int, error) {
	n, err := o.repo.ReclaimInProgress(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.logger.InfoContext(ctx, "reclaimed in-progress records",
			slog.String("action", "reclaim"),
			slog.Int("count", n))
	}
	return n, nil
}

// PendingCount counts records still eligible for delivery.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	return o.repo.CountDeliverable(ctx, domain.MaxSyncRetries)
}

// DeadLetters lists records excluded from delivery.
func (o *Outbox) DeadLetters(ctx context.Context, limit, offset int) ([]domain.SyncRecord, error) {
	return o.repo.DeadLetters(ctx, domain.MaxSyncRetries, limit, offset)
}

// DeadLetterCount counts records excluded from delivery.
func (o *Outbox) DeadLetterCount(ctx context.Context) (int, error) {
	return o.repo.CountDeadLetters(ctx, domain.MaxSyncRetries)
}

// Purge deletes Completed records synced more than retention ago.
func (o *Outbox) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := o.repo.PurgeCompleted(ctx, o.now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.logger.InfoContext(ctx, "purged completed records",
			slog.String("action", "purge"),
			slog.Int("count", n),
			slog.Duration("retention", retention))
	}
	return n, nil
}

// HashPayload returns the hex SHA-256 of payload.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey identifies a delivery by entity, operation and payload.
func IdempotencyKey(rec domain.SyncRecord) string {
	sum := sha256.Sum256([]byte(rec.EntityType + "|" + rec.EntityID + "|" + string(rec.Operation) + "|" + rec.PayloadHash))
	return hex.EncodeToString(sum[:])
}
