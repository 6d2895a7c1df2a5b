package claim

import "github.com/medimate/api/internal/platform/identity"

// The transition table. Directed, acyclic except the review loop
// under_review -> submitted. paid and rejected accept no further transitions;
// documents may still be attached to them.
var transitions = map[Status]map[Status]struct{}{
	StatusDraft:       {StatusSubmitted: {}},
	StatusSubmitted:   {StatusUnderReview: {}},
	StatusUnderReview: {StatusApproved: {}, StatusRejected: {}, StatusSubmitted: {}},
	StatusApproved:    {StatusPaid: {}},
}

func edgeExists(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// insurerEdges are the review edges reserved for the claim's assigned insurer.
var insurerEdges = map[Status]map[Status]struct{}{
	StatusSubmitted:   {StatusUnderReview: {}},
	StatusUnderReview: {StatusApproved: {}, StatusRejected: {}, StatusSubmitted: {}},
	StatusApproved:    {StatusPaid: {}},
}

// authorizeEdge decides whether the actor may drive the claim along an
// existing edge. Admins may force any defined edge as a correction. The
// submit edge belongs to the claim's patient or hospital; every other edge to
// the assigned insurer.
func authorizeEdge(actor identity.Identity, c *Claim, from, to Status) error {
	if actor.IsAdmin() {
		return nil
	}
	if _, ok := insurerEdges[from][to]; ok {
		if actor.Role == identity.RoleInsurer && actor.UserID == c.InsurerID {
			return nil
		}
		return ErrForbidden
	}
	// draft -> submitted
	if actor.Role == identity.RolePatient && actor.UserID == c.PatientID {
		return nil
	}
	if actor.Role == identity.RoleHospital && actor.UserID == c.HospitalID {
		return nil
	}
	return ErrForbidden
}
