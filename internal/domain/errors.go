package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotEnabled         = errors.New("not enabled")
	ErrNoEnabledPlaylists = errors.New("no enabled playlists found")
	ErrShutdownTimeout    = errors.New("shutdown timeout exceeded")
	ErrInvalidInput       = errors.New("invalid input")
)

// AdapterError is returned when the external extraction tool fails.
// Output keeps the tool's diagnostic text verbatim.
type AdapterError struct {
	Op     string
	Output string
	Err    error
}

func (e *AdapterError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when a status transition could not be stored.
// These errors are never swallowed.
type PersistenceError struct {
	Op      string
	VideoID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for video %s: %v", e.Op, e.VideoID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
