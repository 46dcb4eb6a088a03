package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxSyncRetries is the failure count at which a record is dead-lettered.
const MaxSyncRetries = 5

// SyncOperation is the kind of mutation a record carries.
type SyncOperation string

const (
	OperationCreate SyncOperation = "Create"
	OperationUpdate SyncOperation = "Update"
	OperationDelete SyncOperation = "Delete"
)

// Valid reports whether op is a known operation.
func (op SyncOperation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// SyncStatus is the delivery state of an outbox record.
type SyncStatus string

const (
	SyncPending    SyncStatus = "Pending"
	SyncInProgress SyncStatus = "InProgress"
	SyncCompleted  SyncStatus = "Completed"
	SyncFailed     SyncStatus = "Failed"
)

// SyncRecord is one queued mutation awaiting delivery to the remote.
type SyncRecord struct {
	ID           uuid.UUID       `json:"id"`
	EntityType   string          `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	Operation    SyncOperation   `json:"operation"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	PayloadHash  string          `json:"payload_hash"`
	BusinessID   *uuid.UUID      `json:"business_id,omitempty"`
	BranchID     *uuid.UUID      `json:"branch_id,omitempty"`
	Status       SyncStatus      `json:"status"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	SyncedAt     *time.Time      `json:"synced_at,omitempty"`
}

// DeadLettered reports whether the record has exhausted its retries.
func (r SyncRecord) DeadLettered() bool {
	return r.RetryCount >= MaxSyncRetries
}
