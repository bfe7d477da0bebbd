package utils

import "errors"

// Error kinds returned by the pipeline. Wrap them with fmt.Errorf("...: %w")
// so callers can test with errors.Is.
var (
	ErrConfig   = errors.New("configuration error")
	ErrSchema   = errors.New("schema error")
	ErrGeometry = errors.New("geometry mismatch")
)
