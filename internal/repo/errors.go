package repo

import "errors"

// ErrNotFound is returned when no record exists for an identity.
var ErrNotFound = errors.New("state record not found")

// ErrConflict is returned when a conditional write loses: the stored state no
// longer matches the transition's precondition. Callers must re-read before
// deciding whether to retry.
var ErrConflict = errors.New("conditional write conflict")

// ErrUnavailable marks transient store failures that are safe to retry with
// backoff.
var ErrUnavailable = errors.New("state store unavailable")
