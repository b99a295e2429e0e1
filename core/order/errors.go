package order

import "errors"

// ErrNotFound is returned when no order or merge group matches the given id.
var ErrNotFound = errors.New("order: not found")

// ErrValidation rejects malformed or inconsistent input. It is never retried
// automatically.
var ErrValidation = errors.New("order: validation failed")

// ErrConflict signals a lost optimistic write race. The caller must re-read
// and retry; the store never retries on the caller's behalf.
var ErrConflict = errors.New("order: version conflict")

// ErrIllegalTransition is returned when an event is not valid for the order's
// current state. The order is left unchanged.
var ErrIllegalTransition = errors.New("order: illegal transition")

// ErrAlreadyAssigned is returned to a partner that lost the accept race.
var ErrAlreadyAssigned = errors.New("order: already assigned")

// ErrOrderCancelled rejects accepts arriving after a cancellation. A
// cancelled order is never resurrected.
var ErrOrderCancelled = errors.New("order: cancelled")

// ErrWrongPartner rejects delivery events submitted by anyone other than the
// assigned partner. Client-supplied identity is never trusted over the
// stored assignment.
var ErrWrongPartner = errors.New("order: not the assigned partner")

// ErrGroupFrozen is returned when a join is attempted after any group member
// reached CONFIRMED.
var ErrGroupFrozen = errors.New("order: merge group membership frozen")

// ErrGroupFull is returned when a join would exceed the group size cap.
var ErrGroupFull = errors.New("order: merge group full")
