package events

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// Logging wraps a Publisher and logs delivery failures instead of
// returning them. Ban list changes are already committed when events are
// published, so a failed publish must not fail the request.
type Logging struct {
	next   Publisher
	logger hclog.Logger
}

// NewLogging wraps next.
func NewLogging(next Publisher, logger hclog.Logger) *Logging {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Logging{next: next, logger: logger.Named("events")}
}

// Publish implements Publisher. It always returns nil.
func (l *Logging) Publish(ctx context.Context, event *Event) error {
	if err := l.next.Publish(ctx, event); err != nil {
		l.logger.Error("error publishing event",
			"error", err,
			"event_id", event.ID,
			"type", event.Type,
			"user_id", event.UserID,
		)
		return nil
	}
	l.logger.Debug("published event", "event_id", event.ID, "type", event.Type)
	return nil
}

// Close implements Publisher.
func (l *Logging) Close() {
	l.next.Close()
}
