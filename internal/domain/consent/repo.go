package consent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists consent records and their audit trails. Create and
// Update are atomic with their audit appends: a consent mutation commits
// together with its trail entries or not at all.
type Repository interface {
	// Create inserts a new consent together with its first audit entry.
	Create(ctx context.Context, c *Consent, entries ...*AuditEntry) error

	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	GetByKey(ctx context.Context, patientID, entityID uuid.UUID, entityType EntityType) (*Consent, error)

	// Update applies the new state only if the stored version still matches
	// expectedVersion, rotating the version and appending the given audit
	// entries in the same transaction. Returns errConflict on a version
	// mismatch.
	Update(ctx context.Context, c *Consent, expectedVersion uuid.UUID, entries ...*AuditEntry) error

	List(ctx context.Context, limit, offset int) ([]*Consent, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consent, int, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Consent, int, error)

	ListAudit(ctx context.Context, consentID uuid.UUID) ([]*AuditEntry, error)
}
