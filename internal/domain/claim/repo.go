package claim

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows a claim listing. Nil fields match everything; the
// service forces the party field matching the caller's role before the filter
// reaches the repository.
type ListFilter struct {
	PatientID       *uuid.UUID
	HospitalID      *uuid.UUID
	InsurerID       *uuid.UUID
	Status          *Status
	IncludeArchived bool
}

// Repository persists claims, timelines and documents. Create and
// UpdateStatus commit the claim row and its timeline append atomically.
type Repository interface {
	// Create inserts a new claim together with its first timeline entry.
	Create(ctx context.Context, c *Claim, first *TimelineEntry) error

	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)

	// UpdateStatus applies the claim's new status and approved amount only if
	// the stored version still matches expectedVersion, rotating the version
	// and appending the timeline entry in the same transaction. Returns
	// errConflict on a version mismatch.
	UpdateStatus(ctx context.Context, c *Claim, expectedVersion uuid.UUID, entry *TimelineEntry) error

	// Archive sets the soft-delete flag. The timeline is retained.
	Archive(ctx context.Context, id uuid.UUID) error

	AttachDocument(ctx context.Context, d *Document) error

	ListTimeline(ctx context.Context, claimID uuid.UUID) ([]*TimelineEntry, error)
	ListDocuments(ctx context.Context, claimID uuid.UUID) ([]*Document, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Claim, int, error)
}
