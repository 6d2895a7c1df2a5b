// Package events provides the change-notification fan-out channel. Mutating
// operations publish an Event for every party entitled to see the change;
// delivery is best-effort and at-most-once. Subscribers treat events as a
// hint to re-query authoritative state, never as the state itself.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types published by the engine.
const (
	TypeClaimCreated     = "claim.created"
	TypeClaimTransition  = "claim.status_changed"
	TypeClaimDocument    = "claim.document_attached"
	TypeClaimArchived    = "claim.archived"
	TypeConsentGranted   = "consent.granted"
	TypeConsentRevoked   = "consent.revoked"
	TypeConsentRenewed   = "consent.renewed"
)

// Event is an ephemeral notification addressed to a single recipient
// identity. It is never persisted.
type Event struct {
	Type        string          `json:"type"`
	RecipientID string          `json:"recipient_id"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Publisher is the fan-out dependency injected into the domain services.
// Publish must never block the caller's commit path and a delivery failure
// is not an error for the publisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards all events. Useful for tooling and tests that do not
// care about notifications.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
