package domain

import "errors"

// Sentinel errors shared across storage and transport layers.
var (
	// ErrNotFound is returned when a prediction id has no record.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for malformed requests or records.
	ErrInvalidInput = errors.New("invalid input")
)
