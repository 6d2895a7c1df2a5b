package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimate/api/internal/domain/consent"
	"github.com/medimate/api/internal/platform/audit"
	"github.com/medimate/api/internal/platform/events"
	"github.com/medimate/api/internal/platform/identity"
	"github.com/medimate/api/internal/platform/keymutex"
)

// ConsentChecker is the authorization oracle, satisfied by the consent
// service. The check may go stale between check and use; that narrow race is
// accepted and not locked across records.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, patientID, entityID uuid.UUID, entityType consent.EntityType) (bool, error)
}

// PartyDirectory resolves a party's registered role, satisfied by the party
// service.
type PartyDirectory interface {
	RoleOf(ctx context.Context, id uuid.UUID) (identity.Role, error)
}

// Service owns all claim mutations. Mutations on a claim, document attachment
// included, are serialized through the per-claim mutex; the repository's
// version check backstops writers outside this process.
type Service struct {
	claims    Repository
	consents  ConsentChecker
	parties   PartyDirectory
	publisher events.Publisher
	auditor   audit.Recorder
	locks     *keymutex.KeyMutex

	// recheckConsent re-validates the patient's consent on hospital-performed
	// operations after creation, not just at creation time.
	recheckConsent bool

	now func() time.Time
}

func NewService(claims Repository, consents ConsentChecker, parties PartyDirectory, publisher events.Publisher, auditor audit.Recorder, recheckConsent bool) *Service {
	return &Service{
		claims:         claims,
		consents:       consents,
		parties:        parties,
		publisher:      publisher,
		auditor:        auditor,
		locks:          keymutex.New(),
		recheckConsent: recheckConsent,
		now:            time.Now,
	}
}

// CreateInput carries the caller-supplied fields for a new claim.
type CreateInput struct {
	PatientID        uuid.UUID       `json:"patient_id"`
	HospitalID       uuid.UUID       `json:"hospital_id"`
	InsurerID        uuid.UUID       `json:"insurer_id"`
	ClaimedAmount    int64           `json:"claimed_amount"`
	Currency         string          `json:"currency"`
	MedicalInfo      json.RawMessage `json:"medical_info,omitempty"`
	FinancialInfo    json.RawMessage `json:"financial_info,omitempty"`
	ExtractionResult json.RawMessage `json:"extraction_result,omitempty"`
}

// Create opens a new claim. Patient-initiated claims start in draft;
// hospital-initiated claims start in submitted and require an active consent
// from the patient. Party references are validated against the registry.
func (s *Service) Create(ctx context.Context, actor identity.Identity, in CreateInput) (*Claim, error) {
	if in.PatientID == uuid.Nil || in.HospitalID == uuid.Nil || in.InsurerID == uuid.Nil {
		return nil, fmt.Errorf("patient_id, hospital_id and insurer_id are required")
	}
	if in.ClaimedAmount < 0 {
		return nil, fmt.Errorf("claimed_amount must be non-negative")
	}

	var initial Status
	switch {
	case actor.Role == identity.RolePatient && actor.UserID == in.PatientID:
		initial = StatusDraft
	case actor.Role == identity.RoleHospital && actor.UserID == in.HospitalID:
		initial = StatusSubmitted
	case actor.IsAdmin():
		initial = StatusDraft
	default:
		return nil, ErrForbidden
	}

	if err := s.verifyParty(ctx, in.PatientID, identity.RolePatient); err != nil {
		return nil, err
	}
	if err := s.verifyParty(ctx, in.HospitalID, identity.RoleHospital); err != nil {
		return nil, err
	}
	if err := s.verifyParty(ctx, in.InsurerID, identity.RoleInsurer); err != nil {
		return nil, err
	}

	if initial == StatusSubmitted {
		ok, err := s.consents.HasActiveConsent(ctx, in.PatientID, in.HospitalID, consent.EntityHospital)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConsentRequired
		}
	}

	now := s.now().UTC()
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	c := &Claim{
		ID:               uuid.New(),
		PatientID:        in.PatientID,
		HospitalID:       in.HospitalID,
		InsurerID:        in.InsurerID,
		Status:           initial,
		ClaimedAmount:    in.ClaimedAmount,
		Currency:         currency,
		MedicalInfo:      in.MedicalInfo,
		FinancialInfo:    in.FinancialInfo,
		ExtractionResult: in.ExtractionResult,
	}
	c.ClaimNumber = newClaimNumber(c.ID, now)

	first := &TimelineEntry{Status: initial, ActorID: actor.UserID, Comment: "claim created"}
	if err := s.claims.Create(ctx, c, first); err != nil {
		return nil, err
	}

	s.publishToParties(ctx, c, events.TypeClaimCreated)
	s.record(ctx, actor, c.ID, "claim.create")
	return c, nil
}

func (s *Service) verifyParty(ctx context.Context, id uuid.UUID, want identity.Role) error {
	role, err := s.parties.RoleOf(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidParty, id)
	}
	if role != want {
		return fmt.Errorf("%w: %s is not a %s", ErrInvalidParty, id, want)
	}
	return nil
}

// Transition drives the claim along one edge of the transition table. The
// losing side of a racing pair observes the winner's committed status and
// fails with ErrIllegalTransition. approvedAmount applies only to the approve
// edge and must not exceed the claimed amount.
func (s *Service) Transition(ctx context.Context, actor identity.Identity, claimID uuid.UUID, target Status, comment string, approvedAmount *int64) (*Claim, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("invalid status: %s", target)
	}

	key := claimID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !s.isParty(actor, c) {
		return nil, ErrNotFound
	}
	if !edgeExists(c.Status, target) {
		return nil, ErrIllegalTransition
	}
	if err := authorizeEdge(actor, c, c.Status, target); err != nil {
		return nil, err
	}

	if actor.Role == identity.RoleHospital && s.recheckConsent {
		ok, err := s.consents.HasActiveConsent(ctx, c.PatientID, c.HospitalID, consent.EntityHospital)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConsentRequired
		}
	}

	if target == StatusApproved && approvedAmount != nil {
		if *approvedAmount < 0 {
			return nil, fmt.Errorf("approved_amount must be non-negative")
		}
		if *approvedAmount > c.ClaimedAmount {
			return nil, ErrAmountExceedsClaim
		}
		c.ApprovedAmount = *approvedAmount
	}

	expectedVersion := c.VersionID
	c.Status = target
	entry := &TimelineEntry{Status: target, ActorID: actor.UserID, Comment: comment}
	if err := s.claims.UpdateStatus(ctx, c, expectedVersion, entry); err != nil {
		if errors.Is(err, errConflict) {
			return nil, ErrIllegalTransition
		}
		return nil, err
	}

	s.publishToParties(ctx, c, events.TypeClaimTransition)
	s.record(ctx, actor, c.ID, "claim.transition."+string(target))
	return c, nil
}

// DocumentInput carries the caller-supplied attachment metadata.
type DocumentInput struct {
	Category   DocumentCategory `json:"category"`
	Name       string           `json:"name"`
	StorageRef string           `json:"storage_ref"`
}

// AttachDocument appends attachment metadata to the claim. Permitted for the
// claim's patient, the claim's hospital, or an admin; allowed in any status
// so closed claims can still collect records. The insurer is notified.
func (s *Service) AttachDocument(ctx context.Context, actor identity.Identity, claimID uuid.UUID, in DocumentInput) (*Document, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("invalid document category: %s", in.Category)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("document name is required")
	}

	key := claimID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	allowed := actor.IsAdmin() ||
		(actor.Role == identity.RolePatient && actor.UserID == c.PatientID) ||
		(actor.Role == identity.RoleHospital && actor.UserID == c.HospitalID)
	if !allowed {
		return nil, ErrForbidden
	}

	if actor.Role == identity.RoleHospital && s.recheckConsent {
		ok, err := s.consents.HasActiveConsent(ctx, c.PatientID, c.HospitalID, consent.EntityHospital)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrConsentRequired
		}
	}

	d := &Document{
		ID:         uuid.New(),
		ClaimID:    c.ID,
		Category:   in.Category,
		Name:       in.Name,
		StorageRef: in.StorageRef,
		UploadedBy: actor.UserID,
		UploadedAt: s.now().UTC(),
	}
	if err := s.claims.AttachDocument(ctx, d); err != nil {
		return nil, err
	}

	s.publish(ctx, c, events.TypeClaimDocument, c.InsurerID)
	s.record(ctx, actor, c.ID, "claim.document.attach")
	return d, nil
}

// Archive soft-deletes a claim. Admin only; the timeline is retained and the
// claim disappears from non-admin listings.
func (s *Service) Archive(ctx context.Context, actor identity.Identity, claimID uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	key := claimID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return err
	}
	if err := s.claims.Archive(ctx, claimID); err != nil {
		return err
	}

	s.publishToParties(ctx, c, events.TypeClaimArchived)
	s.record(ctx, actor, c.ID, "claim.archive")
	return nil
}

// Get returns a claim visible to the actor. Non-admin actors that are not a
// party to the claim, and non-admin reads of archived claims, get a uniform
// not-found.
func (s *Service) Get(ctx context.Context, actor identity.Identity, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.isParty(actor, c) || (c.Archived && !actor.IsAdmin()) {
		return nil, ErrNotFound
	}
	return c, nil
}

// Timeline returns the claim's status history, gated like Get.
func (s *Service) Timeline(ctx context.Context, actor identity.Identity, claimID uuid.UUID) ([]*TimelineEntry, error) {
	if _, err := s.Get(ctx, actor, claimID); err != nil {
		return nil, err
	}
	return s.claims.ListTimeline(ctx, claimID)
}

// Documents returns the claim's attachment metadata, gated like Get.
func (s *Service) Documents(ctx context.Context, actor identity.Identity, claimID uuid.UUID) ([]*Document, error) {
	if _, err := s.Get(ctx, actor, claimID); err != nil {
		return nil, err
	}
	return s.claims.ListDocuments(ctx, claimID)
}

// List returns the claims visible to the actor, optionally narrowed by
// status. Non-admin callers are pinned to their own party field and never see
// archived claims.
func (s *Service) List(ctx context.Context, actor identity.Identity, status *Status, limit, offset int) ([]*Claim, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status: %s", *status)
	}
	f := ListFilter{Status: status}
	switch actor.Role {
	case identity.RoleAdmin:
		f.IncludeArchived = true
	case identity.RolePatient:
		f.PatientID = &actor.UserID
	case identity.RoleHospital:
		f.HospitalID = &actor.UserID
	case identity.RoleInsurer:
		f.InsurerID = &actor.UserID
	default:
		return nil, 0, ErrForbidden
	}
	return s.claims.List(ctx, f, limit, offset)
}

func (s *Service) isParty(actor identity.Identity, c *Claim) bool {
	return actor.IsAdmin() ||
		actor.UserID == c.PatientID ||
		actor.UserID == c.HospitalID ||
		actor.UserID == c.InsurerID
}

// publishToParties notifies the claim's patient, hospital and insurer, one
// event each. Runs strictly after the durable commit; failures never roll the
// mutation back.
func (s *Service) publishToParties(ctx context.Context, c *Claim, eventType string) {
	s.publish(ctx, c, eventType, c.PatientID, c.HospitalID, c.InsurerID)
}

func (s *Service) publish(ctx context.Context, c *Claim, eventType string, recipients ...uuid.UUID) {
	payload, _ := json.Marshal(map[string]any{
		"claim_id":     c.ID,
		"claim_number": c.ClaimNumber,
		"status":       c.Status,
	})
	ts := s.now().UTC()
	for _, r := range recipients {
		_ = s.publisher.Publish(ctx, events.Event{
			Type:        eventType,
			RecipientID: r.String(),
			Payload:     payload,
			Timestamp:   ts,
		})
	}
}

func (s *Service) record(ctx context.Context, actor identity.Identity, claimID uuid.UUID, action string) {
	s.auditor.Record(ctx, &audit.Event{
		ActorID:      actor.UserID,
		ActorRole:    string(actor.Role),
		Action:       action,
		ResourceType: "claim",
		ResourceID:   claimID,
		Outcome:      audit.OutcomeSuccess,
	})
}
