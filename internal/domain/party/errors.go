package party

import "errors"

// ErrNotFound is returned when no party exists for the given id.
var ErrNotFound = errors.New("party not found")
