package incidents

import "errors"

var (
	// ErrIncidentNotFound is returned when the incident id does not resolve.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrValidation wraps field-level validation failures. The wrapped
	// message carries the joined field errors.
	ErrValidation = errors.New("invalid input")
	// ErrEmptyIDList is returned by bulk operations given no ids.
	ErrEmptyIDList = errors.New("ids must be a non-empty list")
)
