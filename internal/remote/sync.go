package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"poscore/internal/outbox"
	"poscore/pkg/contracts/domain"
)

// PushRequest is the wire form of one outbox record.
type PushRequest struct {
	ID          uuid.UUID            `json:"id"`
	EntityType  string               `json:"entity_type"`
	EntityID    string               `json:"entity_id"`
	Operation   domain.SyncOperation `json:"operation"`
	Payload     json.RawMessage      `json:"payload,omitempty"`
	PayloadHash string               `json:"payload_hash"`
	BusinessID  *uuid.UUID           `json:"business_id,omitempty"`
	BranchID    *uuid.UUID           `json:"branch_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	SourceID    string               `json:"source_id"`
}

// SyncClient delivers outbox records to the cloud ingestion endpoint.
type SyncClient struct {
	baseClient
	identity MachineIdentity
}

// NewSyncClient creates a sync client for baseURL.
func NewSyncClient(baseURL string, timeout time.Duration, tokens *TokenSource, identity MachineIdentity, logger *slog.Logger) *SyncClient {
	return &SyncClient{
		baseClient: newBaseClient(baseURL, timeout, tokens, logger, "sync_client"),
		identity:   identity,
	}
}

// Ping checks that the ingestion endpoint answers.
func (c *SyncClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil, nil)
}

// Push delivers one record. The remote deduplicates on the Idempotency-Key
// header; a 409 means the record was already applied and counts as success.
// Conflicts between terminals resolve as last writer wins by source.
func (c *SyncClient) Push(ctx context.Context, rec domain.SyncRecord) error {
	req := PushRequest{
		ID:          rec.ID,
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		Operation:   rec.Operation,
		Payload:     rec.Payload,
		PayloadHash: rec.PayloadHash,
		BusinessID:  rec.BusinessID,
		BranchID:    rec.BranchID,
		CreatedAt:   rec.CreatedAt,
		SourceID:    c.identity.GetMachineID(),
	}
	headers := map[string]string{"Idempotency-Key": outbox.IdempotencyKey(rec)}

	err := c.do(ctx, http.MethodPost, "/api/v1/sync/records", headers, req, nil)
	var status *StatusError
	if errors.As(err, &status) && status.Code == http.StatusConflict {
		return nil
	}
	return err
}
