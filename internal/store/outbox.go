package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "poscore/internal/errors"
	"poscore/pkg/contracts/domain"
)

const outboxColumns = `id, entity_type, entity_id, operation, payload, payload_hash,
	business_id, branch_id, status, retry_count, error_message, created_at, synced_at`

// OutboxRepository persists sync records. Status changes are conditional
// updates that report whether the row actually moved.
type OutboxRepository struct {
	q querier
}

// Insert appends a record. Duplicate IDs are ignored.
func (r *OutboxRepository) Insert(ctx context.Context, rec domain.SyncRecord) error {
	var payload any
	if rec.Payload != nil {
		payload = []byte(rec.Payload)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sync_outbox
		(id, entity_type, entity_id, operation, payload, payload_hash,
		 business_id, branch_id, status, retry_count, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID.String(),
		rec.EntityType,
		rec.EntityID,
		string(rec.Operation),
		payload,
		rec.PayloadHash,
		nullUUID(rec.BusinessID),
		nullUUID(rec.BranchID),
		string(rec.Status),
		rec.RetryCount,
		rec.ErrorMessage,
		toNanos(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sync record: %w", err)
	}
	return nil
}

// Get returns one record by ID.
func (r *OutboxRepository) Get(ctx context.Context, id uuid.UUID) (domain.SyncRecord, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM sync_outbox WHERE id = ?`, id.String())
	rec, err := scanSyncRecord(row)
	if err != nil {
		return domain.SyncRecord{}, fmt.Errorf("get sync record %s: %w", id, notFound(err, apperrors.ErrRecordNotFound))
	}
	return rec, nil
}

// Deliverable returns records eligible for delivery, oldest first. Insertion
// order breaks ties between records with the same timestamp.
func (r *OutboxRepository) Deliverable(ctx context.Context, maxRetries, limit int) ([]domain.SyncRecord, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM sync_outbox
		WHERE status IN ('Pending', 'Failed') AND retry_count < ?
		ORDER BY created_at ASC, seq ASC
		LIMIT ?
	`, maxRetries, limit)
}

// DeadLetters returns records that exhausted their retries, oldest first.
func (r *OutboxRepository) DeadLetters(ctx context.Context, maxRetries, limit, offset int) ([]domain.SyncRecord, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM sync_outbox
		WHERE retry_count >= ?
		ORDER BY created_at ASC, seq ASC
		LIMIT ? OFFSET ?
	`, maxRetries, limit, offset)
}

// ForEntity returns every record queued for one entity, oldest first.
func (r *OutboxRepository) ForEntity(ctx context.Context, entityType, entityID string) ([]domain.SyncRecord, error) {
	return r.list(ctx, `
		SELECT `+outboxColumns+` FROM sync_outbox
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, seq ASC
	`, entityType, entityID)
}

// CountDeliverable counts records eligible for delivery.
func (r *OutboxRepository) CountDeliverable(ctx context.Context, maxRetries int) (int, error) {
	return r.count(ctx, `
		SELECT COUNT(*) FROM sync_outbox
		WHERE status IN ('Pending', 'Failed') AND retry_count < ?
	`, maxRetries)
}

// CountDeadLetters counts records that exhausted their retries.
func (r *OutboxRepository) CountDeadLetters(ctx context.Context, maxRetries int) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sync_outbox WHERE retry_count >= ?`, maxRetries)
}

// Claim moves a deliverable record to InProgress.
func (r *OutboxRepository) Claim(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error) {
	return r.update(ctx, "claim", `
		UPDATE sync_outbox SET status = 'InProgress'
		WHERE id = ? AND status IN ('Pending', 'Failed') AND retry_count < ?
	`, id.String(), maxRetries)
}

// MarkSynced completes an InProgress record.
func (r *OutboxRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.update(ctx, "mark synced", `
		UPDATE sync_outbox SET status = 'Completed', synced_at = ?, error_message = NULL
		WHERE id = ? AND status = 'InProgress'
	`, toNanos(at), id.String())
}

// MarkFailed fails an InProgress record and bumps its retry count.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	return r.update(ctx, "mark failed", `
		UPDATE sync_outbox SET status = 'Failed', retry_count = retry_count + 1, error_message = ?
		WHERE id = ? AND status = 'InProgress'
	`, message, id.String())
}

// ReclaimInProgress returns every InProgress record to Pending and reports
// how many moved. Retry counts are left untouched.
func (r *OutboxRepository) ReclaimInProgress(ctx context.Context) (int, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE sync_outbox SET status = 'Pending' WHERE status = 'InProgress'`)
	if err != nil {
		return 0, fmt.Errorf("reclaim in-progress records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim in-progress records: %w", err)
	}
	return int(n), nil
}

// PurgeCompleted deletes Completed records synced before cutoff.
func (r *OutboxRepository) PurgeCompleted(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM sync_outbox
		WHERE status = 'Completed' AND synced_at IS NOT NULL AND synced_at < ?
	`, toNanos(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge completed records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge completed records: %w", err)
	}
	return int(n), nil
}

func (r *OutboxRepository) update(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

func (r *OutboxRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync records: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) list(ctx context.Context, query string, args ...any) ([]domain.SyncRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync records: %w", err)
	}
	defer rows.Close()

	records := []domain.SyncRecord{}
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (domain.SyncRecord, error) {
	var (
		rec                  domain.SyncRecord
		id, op, status       string
		payload              []byte
		businessID, branchID sql.NullString
		errMsg               sql.NullString
		createdAt            int64
		syncedAt             sql.NullInt64
	)

	if err := row.Scan(&id, &rec.EntityType, &rec.EntityID, &op, &payload, &rec.PayloadHash,
		&businessID, &branchID, &status, &rec.RetryCount, &errMsg, &createdAt, &syncedAt); err != nil {
		return domain.SyncRecord{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.SyncRecord{}, fmt.Errorf("parse sync record id: %w", err)
	}
	rec.ID = parsed
	rec.Operation = domain.SyncOperation(op)
	rec.Status = domain.SyncStatus(status)
	if payload != nil {
		rec.Payload = payload
	}
	if rec.BusinessID, err = fromNullUUID(businessID); err != nil {
		return domain.SyncRecord{}, err
	}
	if rec.BranchID, err = fromNullUUID(branchID); err != nil {
		return domain.SyncRecord{}, err
	}
	rec.ErrorMessage = fromNullString(errMsg)
	rec.CreatedAt = fromNanos(createdAt)
	rec.SyncedAt = fromNullNanos(syncedAt)
	return rec, nil
}
