package consent

import "errors"

var (
	ErrNotFound       = errors.New("consent not found")
	ErrForbidden      = errors.New("operation not permitted")
	ErrAlreadyGranted = errors.New("an active consent already exists")
	ErrAlreadyRevoked = errors.New("consent is already revoked")
)

// errConflict signals an optimistic-version mismatch from the repository. The
// service translates it into the operation-appropriate sentinel.
var errConflict = errors.New("consent was modified concurrently")
