package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrInvalidConfig marks a malformed MiningConfig, rejected before
	// any computation starts.
	ErrInvalidConfig = errors.New("invalid mining config")
	// ErrMalformedEvent marks an OrgEvent that violates the upstream
	// normalizer contract (unparseable timestamp).
	ErrMalformedEvent = errors.New("malformed event")
)
