package claim

import "errors"

var (
	ErrNotFound           = errors.New("claim not found")
	ErrForbidden          = errors.New("operation not permitted")
	ErrConsentRequired    = errors.New("active patient consent required")
	ErrIllegalTransition  = errors.New("transition not allowed from current status")
	ErrAmountExceedsClaim = errors.New("approved amount exceeds claimed amount")
	ErrInvalidParty       = errors.New("referenced party does not hold the required role")
)

// errConflict signals an optimistic-version mismatch from the repository.
var errConflict = errors.New("claim was modified concurrently")
