// Package services defines the business logic for production goals: the
// transactional submit/edit/delete protocol, completion detection, project
// administration and the read-only statistics.
//
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers. Translation
// into HTTP status codes is performed by the handler layer.
package services

import "errors"

// Input and identity errors.
var (
	// ErrUnauthenticated is returned when a mutation arrives without a user.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidInput is returned for missing ids, keys or malformed fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuantity is returned when a quantity is not a positive integer.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

// Lookup errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrPartNotFound       = errors.New("part not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrArchiveNotFound    = errors.New("archive not found")
)

// ErrPartInactive is returned when contributing to a part that has no
// running goal cycle.
var ErrPartInactive = errors.New("part is not accepting submissions")

// ErrNoGoals is returned when starting a project none of whose parts has a
// positive goal.
var ErrNoGoals = errors.New("project has no part with a goal")

// Duplicate family. These are benign: the operation the caller wanted has
// already been applied (or must not be applied twice) and nothing changed.
var (
	// ErrDuplicateKey: the idempotency key was already seen.
	ErrDuplicateKey = errors.New("duplicate request")

	// ErrDuplicateRecent: identical (user, part, quantity) submission within
	// the duplicate window.
	ErrDuplicateRecent = errors.New("identical submission received moments ago")

	// ErrDuplicateEdit: the submission already holds this quantity and was
	// updated moments ago.
	ErrDuplicateEdit = errors.New("identical edit received moments ago")

	// ErrAlreadyDeleted: the submission is already gone.
	ErrAlreadyDeleted = errors.New("submission already deleted")
)

// IsDuplicate reports whether err belongs to the duplicate family.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrDuplicateRecent) ||
		errors.Is(err, ErrDuplicateEdit) ||
		errors.Is(err, ErrAlreadyDeleted)
}
