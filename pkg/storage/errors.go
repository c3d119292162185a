package storage

import "errors"

var (
	// ErrNotFound indicates the requested blob does not exist.
	ErrNotFound = errors.New("blob not found")
	// ErrEmptyKey indicates an empty storage key was provided.
	ErrEmptyKey = errors.New("storage key must not be empty")
	// ErrInvalidKey indicates the storage key contains a path traversal segment.
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
	// ErrInvalidExpiry indicates a signed URL was requested with a non-positive lifetime.
	ErrInvalidExpiry = errors.New("signed url expiry must be positive")
	// ErrListLimit indicates a prefix listing did not terminate within its page cap.
	ErrListLimit = errors.New("blob listing exceeded page limit")
)
