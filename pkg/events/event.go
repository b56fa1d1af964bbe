// Package events publishes ban list changes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

const (
	TypePlayerBanned   Type = "player.banned"
	TypePlayerUnbanned Type = "player.unbanned"
)

// Event is the envelope published for every ban list change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	// Revision is the document revision that contains the change.
	Revision string `json:"revision,omitempty"`

	// RequestID correlates the event with the API request that caused it.
	RequestID string `json:"request_id,omitempty"`
}

// New creates an event with a fresh ID and the current time.
func New(typ Type, userID string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }

func (Nop) Close() {}
