package reminder

import (
	"time"

	"remindbot/internal/eventbus"
)

// Lifecycle event types published on the bus.
const (
	EventCreated   = "reminder.created"
	EventFired     = "reminder.fired"
	EventSnoozed   = "reminder.snoozed"
	EventCancelled = "reminder.cancelled"
	EventExpired   = "reminder.expired"
	EventAdvanced  = "reminder.advanced"
)

// EventData is the payload of every reminder event.
type EventData struct {
	ID          string
	OwnerID     string
	Destination string
	FireAt      time.Time
	Recurrence  Recurrence
	Detail      string
}

func (s *Service) publish(typ string, r Record, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Time: s.clock.Now(),
		Data: EventData{
			ID:          r.ID,
			OwnerID:     r.OwnerID,
			Destination: r.Destination,
			FireAt:      r.FireAt,
			Recurrence:  r.Recurrence,
			Detail:      detail,
		},
	})
}
