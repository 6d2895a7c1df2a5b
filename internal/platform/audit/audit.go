// Package audit writes the engine-level compliance log: one append-only row
// per committed mutation, separate from the per-record timelines kept by the
// claim and consent packages. Rows are never updated or deleted.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Outcome values for recorded events.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// Event is a single compliance log entry.
type Event struct {
	ID           uuid.UUID `json:"id"`
	ActorID      uuid.UUID `json:"actor_id"`
	ActorRole    string    `json:"actor_role"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   uuid.UUID `json:"resource_id"`
	Outcome      string    `json:"outcome"`
	Detail       string    `json:"detail,omitempty"`
	Recorded     time.Time `json:"recorded"`
}

// Recorder appends events to the compliance log. A recording failure must
// never fail the operation that produced it; implementations log and move on.
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

// PGRecorder writes events to the audit_event table.
type PGRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPGRecorder creates a PGRecorder backed by the given connection pool.
func NewPGRecorder(pool *pgxpool.Pool, logger zerolog.Logger) *PGRecorder {
	return &PGRecorder{pool: pool, logger: logger}
}

// Record inserts the event. Failures are logged, never propagated: the
// mutation that produced the event has already committed.
func (r *PGRecorder) Record(ctx context.Context, event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Recorded.IsZero() {
		event.Recorded = time.Now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_event (id, actor_id, actor_role, action, resource_type, resource_id, outcome, detail, recorded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.ID, event.ActorID, event.ActorRole, event.Action,
		event.ResourceType, event.ResourceID, event.Outcome, event.Detail, event.Recorded)
	if err != nil {
		r.logger.Error().Err(err).
			Str("action", event.Action).
			Str("resource_type", event.ResourceType).
			Str("resource_id", event.ResourceID.String()).
			Msg("audit record failed")
	}
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Event) {}
