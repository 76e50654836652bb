package storage

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a unique key (login) is already taken.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrConflict is returned when a conditional write finds the row changed
	// since it was read, or when the backend aborts a transaction on a
	// concurrent modification.
	ErrConflict = errors.New("concurrent modification")
)
