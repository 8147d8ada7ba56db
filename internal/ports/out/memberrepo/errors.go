package memberrepo

import "errors"

var (
	// ErrNotFound indicates the requested member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrAlreadyExists indicates a member already exists with the provided ID.
	ErrAlreadyExists = errors.New("member already exists")

	// ErrEmailAlreadyInUse indicates another member is registered with the same email (case-insensitive).
	ErrEmailAlreadyInUse = errors.New("member email already in use")

	// ErrVersionConflict indicates the member changed since it was loaded.
	ErrVersionConflict = errors.New("member version conflict")
)
