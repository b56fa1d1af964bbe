package banlist

import (
	"fmt"

	"github.com/rbxmod/banlist/pkg/docstore"
)

// ValidationError is returned for requests that are missing required
// fields. Nothing is read from or written to the store.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FetchError is returned when the current document cannot be read.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch ban list: %v", e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError is returned when the updated document cannot be written,
// including when another writer got there first.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to store ban list: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Conflict reports whether the write was rejected for a stale revision.
func (e *StoreError) Conflict() bool {
	return docstore.IsConflict(e.Err)
}
