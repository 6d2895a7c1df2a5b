// Package claim implements the claim state machine: a reimbursement request
// linking one patient, one hospital and one insurer, advanced through a fixed
// transition table, with an append-only per-claim timeline and a document
// attachment registry. Hospital-initiated mutations are gated by the consent
// ledger.
package claim

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a claim. The values are stable interchange vocabulary.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPaid        Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// DocumentCategory tags an attachment with its kind.
type DocumentCategory string

const (
	DocMedicalReport    DocumentCategory = "medical_report"
	DocInvoice          DocumentCategory = "invoice"
	DocPrescription     DocumentCategory = "prescription"
	DocLabReport        DocumentCategory = "lab_report"
	DocDischargeSummary DocumentCategory = "discharge_summary"
	DocOther            DocumentCategory = "other"
)

func (c DocumentCategory) Valid() bool {
	switch c {
	case DocMedicalReport, DocInvoice, DocPrescription, DocLabReport, DocDischargeSummary, DocOther:
		return true
	}
	return false
}

// Claim is one reimbursement request. Party references are immutable after
// creation; amounts are in minor currency units. MedicalInfo, FinancialInfo
// and ExtractionResult are structured but opaque to the engine.
type Claim struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ClaimNumber      string          `json:"claim_number" db:"claim_number"`
	PatientID        uuid.UUID       `json:"patient_id" db:"patient_id"`
	HospitalID       uuid.UUID       `json:"hospital_id" db:"hospital_id"`
	InsurerID        uuid.UUID       `json:"insurer_id" db:"insurer_id"`
	Status           Status          `json:"status" db:"status"`
	ClaimedAmount    int64           `json:"claimed_amount" db:"claimed_amount"`
	ApprovedAmount   int64           `json:"approved_amount" db:"approved_amount"`
	Currency         string          `json:"currency" db:"currency"`
	MedicalInfo      json.RawMessage `json:"medical_info,omitempty" db:"medical_info"`
	FinancialInfo    json.RawMessage `json:"financial_info,omitempty" db:"financial_info"`
	ExtractionResult json.RawMessage `json:"extraction_result,omitempty" db:"extraction_result"`
	Archived         bool            `json:"archived" db:"archived"`
	VersionID        uuid.UUID       `json:"-" db:"version_id"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// AgeDays is the claim's age truncated to whole days. Informational only,
// never consulted for transition eligibility.
func (c *Claim) AgeDays(now time.Time) int {
	return int(now.Sub(c.CreatedAt) / (24 * time.Hour))
}

// newClaimNumber derives the human-legible claim identifier from the claim's
// UUID, e.g. CLM-2026-9F2A41C0.
func newClaimNumber(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("CLM-%d-%08X", now.Year(), binary.BigEndian.Uint32(id[0:4]))
}

// TimelineEntry is one append-only row in a claim's status history. Seq is
// the authoritative ordering.
type TimelineEntry struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ClaimID    uuid.UUID `json:"claim_id" db:"claim_id"`
	Seq        int       `json:"seq" db:"seq"`
	Status     Status    `json:"status" db:"status"`
	ActorID    uuid.UUID `json:"actor_id" db:"actor_id"`
	Comment    string    `json:"comment,omitempty" db:"comment"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// Document is attachment metadata. The bytes live in external storage behind
// StorageRef.
type Document struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	ClaimID    uuid.UUID        `json:"claim_id" db:"claim_id"`
	Category   DocumentCategory `json:"category" db:"category"`
	Name       string           `json:"name" db:"name"`
	StorageRef string           `json:"storage_ref,omitempty" db:"storage_ref"`
	UploadedBy uuid.UUID        `json:"uploaded_by" db:"uploaded_by"`
	UploadedAt time.Time        `json:"uploaded_at" db:"uploaded_at"`
}
