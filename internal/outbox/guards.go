package outbox

import (
	"fmt"

	"poscore/pkg/contracts/domain"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanClaim evaluates whether a record may move to InProgress.
// Rules:
// - Status must be Pending or Failed
// - Retry count must be below the dead-letter threshold
func CanClaim(rec domain.SyncRecord) GuardResult {
	if rec.DeadLettered() {
		return GuardResult{
			Reason: fmt.Sprintf("record %s is dead-lettered after %d attempts", rec.ID, rec.RetryCount),
		}
	}
	if rec.Status != domain.SyncPending && rec.Status != domain.SyncFailed {
		return GuardResult{
			Reason: fmt.Sprintf("record %s is %s, only Pending or Failed records can be claimed", rec.ID, rec.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// CanFinish evaluates whether a record may take a terminal transition
// (MarkSynced or MarkFailed).
// Rules:
// - Status must be InProgress
func CanFinish(rec domain.SyncRecord) GuardResult {
	if rec.Status != domain.SyncInProgress {
		return GuardResult{
			Reason: fmt.Sprintf("record %s is %s, only InProgress records can be finished", rec.ID, rec.Status),
		}
	}
	return GuardResult{Allowed: true}
}

// ValidateEntry evaluates whether an entry can be enqueued.
// Rules:
// - Entity type and ID are required
// - Operation must be Create, Update or Delete
// - Create and Update must carry a payload
func ValidateEntry(e Entry) GuardResult {
	if e.EntityType == "" || e.EntityID == "" {
		return GuardResult{Reason: "entity type and entity id are required"}
	}
	if !e.Operation.Valid() {
		return GuardResult{Reason: fmt.Sprintf("unknown operation %q", e.Operation)}
	}
	if e.Operation != domain.OperationDelete && e.Payload == nil {
		return GuardResult{Reason: fmt.Sprintf("%s of %s %s needs a payload", e.Operation, e.EntityType, e.EntityID)}
	}
	return GuardResult{Allowed: true}
}
