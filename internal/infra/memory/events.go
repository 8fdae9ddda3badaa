package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"quiz-session-engine/internal/domain"
)

// EventSink records published events and logs them. Used when no broker is configured.
type EventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventSink() *EventSink {
	return &EventSink{}
}

func (s *EventSink) Publish(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	log.Debug().
		Str("event_id", event.ID).
		Str("event", string(event.Type)).
		Str("user_id", event.UserID).
		Msg("event recorded")
	return nil
}

// Events returns a copy of everything published so far.
func (s *EventSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}
