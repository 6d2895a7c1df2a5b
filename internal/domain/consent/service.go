package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/platform/attest"
	"github.com/medimate/api/internal/platform/audit"
	"github.com/medimate/api/internal/platform/events"
	"github.com/medimate/api/internal/platform/identity"
	"github.com/medimate/api/internal/platform/keymutex"
)

// Service owns all consent mutations. Every mutation on a composite key is
// serialized through the key mutex for the full read-validate-write span; the
// repository's version check backstops writers outside this process.
type Service struct {
	consents  Repository
	attestor  attest.Service
	publisher events.Publisher
	auditor   audit.Recorder
	locks     *keymutex.KeyMutex
	ttl       time.Duration
	now       func() time.Time
}

func NewService(consents Repository, attestor attest.Service, publisher events.Publisher, auditor audit.Recorder, ttl time.Duration) *Service {
	return &Service{
		consents:  consents,
		attestor:  attestor,
		publisher: publisher,
		auditor:   auditor,
		locks:     keymutex.New(),
		ttl:       ttl,
		now:       time.Now,
	}
}

func lockKey(patientID, entityID uuid.UUID, entityType EntityType) string {
	return patientID.String() + "|" + entityID.String() + "|" + string(entityType)
}

// GrantInput carries the caller-supplied fields for a grant. ExpiresAt nil
// means the default validity window (one year by configuration).
type GrantInput struct {
	PatientID   uuid.UUID   `json:"patient_id"`
	EntityID    uuid.UUID   `json:"entity_id"`
	EntityType  EntityType  `json:"entity_type"`
	Permissions Permissions `json:"permissions"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
}

// Grant creates a consent for the composite key, or reactivates the existing
// record in place when it is revoked or has lapsed. An active record fails
// with ErrAlreadyGranted. Only the patient themself or an admin may grant.
func (s *Service) Grant(ctx context.Context, actor identity.Identity, in GrantInput) (*Consent, error) {
	if !in.EntityType.Valid() {
		return nil, fmt.Errorf("invalid entity type: %s", in.EntityType)
	}
	if in.PatientID == uuid.Nil || in.EntityID == uuid.Nil {
		return nil, fmt.Errorf("patient_id and entity_id are required")
	}
	if !actor.IsAdmin() && actor.UserID != in.PatientID {
		return nil, ErrForbidden
	}

	key := lockKey(in.PatientID, in.EntityID, in.EntityType)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	now := s.now().UTC()
	expires := now.Add(s.ttl)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, fmt.Errorf("expires_at must be in the future")
		}
		expires = in.ExpiresAt.UTC()
	}

	existing, err := s.consents.GetByKey(ctx, in.PatientID, in.EntityID, in.EntityType)
	switch {
	case errors.Is(err, ErrNotFound):
		return s.grantNew(ctx, actor, in, now, expires)
	case err != nil:
		return nil, err
	}

	if existing.IsActive(now) {
		return nil, ErrAlreadyGranted
	}

	// Reactivate in place. A lapsed grant gets its expiry recorded on the
	// trail before the new grant entry, since nothing else ever touched it.
	var entries []*AuditEntry
	if existing.Status == StatusGranted {
		entries = append(entries, &AuditEntry{Action: ActionExpired, Reason: "validity window elapsed"})
	}
	entries = append(entries, &AuditEntry{Action: ActionGranted})

	token, err := s.attestor.Attest(ctx, existing.ID.String())
	if err != nil {
		return nil, fmt.Errorf("attest consent: %w", err)
	}

	expectedVersion := existing.VersionID
	existing.Status = StatusGranted
	existing.Permissions = in.Permissions
	existing.GrantedAt = now
	existing.ExpiresAt = expires
	existing.RevokedAt = nil
	existing.AttestationToken = token
	existing.AttestationConfirmed = true

	if err := s.consents.Update(ctx, existing, expectedVersion, entries...); err != nil {
		if errors.Is(err, errConflict) {
			return nil, ErrAlreadyGranted
		}
		return nil, err
	}

	s.afterCommit(ctx, actor, existing, events.TypeConsentGranted, "consent.grant")
	return existing, nil
}

func (s *Service) grantNew(ctx context.Context, actor identity.Identity, in GrantInput, now, expires time.Time) (*Consent, error) {
	c := &Consent{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		EntityID:    in.EntityID,
		EntityType:  in.EntityType,
		Status:      StatusGranted,
		Permissions: in.Permissions,
		GrantedAt:   now,
		ExpiresAt:   expires,
	}

	token, err := s.attestor.Attest(ctx, c.ID.String())
	if err != nil {
		return nil, fmt.Errorf("attest consent: %w", err)
	}
	c.AttestationToken = token
	c.AttestationConfirmed = true

	if err := s.consents.Create(ctx, c, &AuditEntry{Action: ActionGranted}); err != nil {
		return nil, err
	}

	s.afterCommit(ctx, actor, c, events.TypeConsentGranted, "consent.grant")
	return c, nil
}

// Revoke sets the consent to revoked. Only the owning patient or an admin may
// revoke; a second revoke fails with ErrAlreadyRevoked.
func (s *Service) Revoke(ctx context.Context, actor identity.Identity, consentID uuid.UUID, reason string) (*Consent, error) {
	c, err := s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != c.PatientID {
		return nil, ErrForbidden
	}

	key := lockKey(c.PatientID, c.EntityID, c.EntityType)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	// Re-read under the lock; a racing revoke may have committed first.
	c, err = s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusRevoked {
		return nil, ErrAlreadyRevoked
	}

	now := s.now().UTC()
	expectedVersion := c.VersionID
	c.Status = StatusRevoked
	c.RevokedAt = &now

	if err := s.consents.Update(ctx, c, expectedVersion, &AuditEntry{Action: ActionRevoked, Reason: reason}); err != nil {
		if errors.Is(err, errConflict) {
			return nil, ErrAlreadyRevoked
		}
		return nil, err
	}

	s.afterCommit(ctx, actor, c, events.TypeConsentRevoked, "consent.revoke")
	return c, nil
}

// Renew re-grants a revoked consent with a fresh expiry. A consent in any
// other state fails with ErrAlreadyGranted.
func (s *Service) Renew(ctx context.Context, actor identity.Identity, consentID uuid.UUID, newExpiresAt *time.Time) (*Consent, error) {
	c, err := s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != c.PatientID {
		return nil, ErrForbidden
	}

	key := lockKey(c.PatientID, c.EntityID, c.EntityType)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	c, err = s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusRevoked {
		return nil, ErrAlreadyGranted
	}

	now := s.now().UTC()
	expires := now.Add(s.ttl)
	if newExpiresAt != nil {
		if !newExpiresAt.After(now) {
			return nil, fmt.Errorf("expires_at must be in the future")
		}
		expires = newExpiresAt.UTC()
	}

	expectedVersion := c.VersionID
	c.Status = StatusGranted
	c.GrantedAt = now
	c.ExpiresAt = expires
	c.RevokedAt = nil

	if err := s.consents.Update(ctx, c, expectedVersion, &AuditEntry{Action: ActionRenewed}); err != nil {
		if errors.Is(err, errConflict) {
			return nil, ErrAlreadyGranted
		}
		return nil, err
	}

	s.afterCommit(ctx, actor, c, events.TypeConsentRenewed, "consent.renew")
	return c, nil
}

// HasActiveConsent is the authorization oracle. It is a pure read against
// wall-clock time; a missing record is simply "no consent", not an error.
func (s *Service) HasActiveConsent(ctx context.Context, patientID, entityID uuid.UUID, entityType EntityType) (bool, error) {
	c, err := s.consents.GetByKey(ctx, patientID, entityID, entityType)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.IsActive(s.now()), nil
}

// Get returns a consent visible to the actor. Non-admin actors that are
// neither the patient nor the entity get a uniform not-found.
func (s *Service) Get(ctx context.Context, actor identity.Identity, id uuid.UUID) (*Consent, error) {
	c, err := s.consents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canRead(actor, c) {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns the consents visible to the actor: patients see their own
// grants, entities see grants naming them, admins see everything.
func (s *Service) List(ctx context.Context, actor identity.Identity, limit, offset int) ([]*Consent, int, error) {
	switch actor.Role {
	case identity.RoleAdmin:
		return s.consents.List(ctx, limit, offset)
	case identity.RolePatient:
		return s.consents.ListByPatient(ctx, actor.UserID, limit, offset)
	case identity.RoleHospital, identity.RoleInsurer:
		return s.consents.ListByEntity(ctx, actor.UserID, limit, offset)
	default:
		return nil, 0, ErrForbidden
	}
}

// Audit returns the consent's trail, gated like Get.
func (s *Service) Audit(ctx context.Context, actor identity.Identity, consentID uuid.UUID) ([]*AuditEntry, error) {
	c, err := s.consents.GetByID(ctx, consentID)
	if err != nil {
		return nil, err
	}
	if !s.canRead(actor, c) {
		return nil, ErrNotFound
	}
	return s.consents.ListAudit(ctx, consentID)
}

func (s *Service) canRead(actor identity.Identity, c *Consent) bool {
	return actor.IsAdmin() || actor.UserID == c.PatientID || actor.UserID == c.EntityID
}

// afterCommit publishes the change event to the entity and records the
// compliance log entry. Both run strictly after the durable commit and never
// fail the operation.
func (s *Service) afterCommit(ctx context.Context, actor identity.Identity, c *Consent, eventType, action string) {
	payload, _ := json.Marshal(map[string]any{
		"consent_id":  c.ID,
		"patient_id":  c.PatientID,
		"entity_id":   c.EntityID,
		"entity_type": c.EntityType,
		"status":      c.Status,
	})
	_ = s.publisher.Publish(ctx, events.Event{
		Type:        eventType,
		RecipientID: c.EntityID.String(),
		Payload:     payload,
		Timestamp:   s.now().UTC(),
	})
	s.auditor.Record(ctx, &audit.Event{
		ActorID:      actor.UserID,
		ActorRole:    string(actor.Role),
		Action:       action,
		ResourceType: "consent",
		ResourceID:   c.ID,
		Outcome:      audit.OutcomeSuccess,
	})
}
