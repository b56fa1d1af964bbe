package docstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the document does not exist yet.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned by Put when the presented revision is not the
	// current revision of the document.
	ErrConflict = errors.New("document revision conflict")
)

// Object is a document as read from a Store.
type Object struct {
	// Content is the raw document bytes.
	Content []byte

	// Revision identifies the exact stored version Content was read from.
	Revision string
}

// Store reads and conditionally writes one document.
type Store interface {
	// Name returns the adapter name used in logs and config.
	Name() string

	// Get returns the current document or ErrNotFound.
	Get(ctx context.Context) (*Object, error)

	// Put writes content as a new version of the document and returns the
	// new revision. An empty revision means the document must not exist yet.
	// message is an audit label describing the change.
	Put(ctx context.Context, content []byte, revision, message string) (string, error)
}

// Change is one recorded write to the document.
type Change struct {
	Revision string
	Message  string
	Time     time.Time
}

// HistoryReader is implemented by stores that keep an audit trail of
// writes.
type HistoryReader interface {
	// History returns up to limit recent changes, newest first.
	History(ctx context.Context, limit int) ([]Change, error)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
