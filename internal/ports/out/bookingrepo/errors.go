package bookingrepo

import "errors"

var (
	ErrNotFound      = errors.New("booking not found")
	ErrAlreadyExists = errors.New("booking already exists")

	// ErrActiveBookingExists indicates a non-cancelled booking already exists for the
	// same (member, session) pair.
	ErrActiveBookingExists = errors.New("active booking already exists for member and session")

	ErrVersionConflict = errors.New("booking version conflict")
)
