// Package consent implements the consent ledger: patient-granted, time-bounded,
// revocable authorizations for a hospital or insurer to access or act on the
// patient's data. The ledger is the authorization oracle consulted by the claim
// engine before any hospital-initiated mutation.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Status of a consent record. Expiry is lazy: a record past its expiresAt keeps
// StatusGranted in storage until a mutating operation touches it.
type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// EntityType identifies the kind of party a consent is granted to.
type EntityType string

const (
	EntityHospital EntityType = "hospital"
	EntityInsurer  EntityType = "insurer"
)

func (t EntityType) Valid() bool {
	return t == EntityHospital || t == EntityInsurer
}

// Permissions are informational capability flags scoped by the grant. The
// engine only enforces existence-of-active-consent, not individual flags.
type Permissions struct {
	ViewRecords         bool `json:"view_records" db:"view_records"`
	ShareWithThirdParty bool `json:"share_with_third_party" db:"share_with_third_party"`
	ResearchUse         bool `json:"research_use" db:"research_use"`
	Marketing           bool `json:"marketing" db:"marketing"`
}

// Consent is one record per composite key (patient, entity, entityType). At
// most one record exists per key; revoked records are reactivated in place on
// re-grant instead of duplicated.
type Consent struct {
	ID                   uuid.UUID   `json:"id" db:"id"`
	PatientID            uuid.UUID   `json:"patient_id" db:"patient_id"`
	EntityID             uuid.UUID   `json:"entity_id" db:"entity_id"`
	EntityType           EntityType  `json:"entity_type" db:"entity_type"`
	Status               Status      `json:"status" db:"status"`
	Permissions          Permissions `json:"permissions" db:"permissions"`
	GrantedAt            time.Time   `json:"granted_at" db:"granted_at"`
	ExpiresAt            time.Time   `json:"expires_at" db:"expires_at"`
	RevokedAt            *time.Time  `json:"revoked_at,omitempty" db:"revoked_at"`
	AttestationToken     string      `json:"attestation_token,omitempty" db:"attestation_token"`
	AttestationConfirmed bool        `json:"attestation_confirmed" db:"attestation_confirmed"`
	VersionID            uuid.UUID   `json:"-" db:"version_id"`
	CreatedAt            time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the consent authorizes access at the given instant.
// The expiry bound is strict: a consent expiring exactly now is not active.
func (c *Consent) IsActive(now time.Time) bool {
	return c.Status == StatusGranted && now.Before(c.ExpiresAt)
}

// EffectiveStatus computes the status as of now, folding lazy expiry in
// without writing anything.
func (c *Consent) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusGranted && !now.Before(c.ExpiresAt) {
		return StatusExpired
	}
	return c.Status
}

// Audit trail actions.
const (
	ActionGranted  = "granted"
	ActionModified = "modified"
	ActionRevoked  = "revoked"
	ActionExpired  = "expired"
	ActionRenewed  = "renewed"
)

// AuditEntry is one append-only row in a consent's audit trail. Seq is the
// authoritative ordering; timestamps are advisory.
type AuditEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ConsentID  uuid.UUID `json:"consent_id" db:"consent_id"`
	Seq        int       `json:"seq" db:"seq"`
	Action     string    `json:"action" db:"action"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}
