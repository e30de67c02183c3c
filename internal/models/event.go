package models

import "time"

// Realtime message types.
const (
	EventNewTicketCalled = "newTicketCalled"
	EventCurrentNumber   = "currentNumber"
)

type CalledTicket struct {
	ID       string       `json:"id"`
	Number   string       `json:"number"`
	QueueID  string       `json:"queueId"`
	Status   TicketStatus `json:"status"`
	CalledAt *time.Time   `json:"calledAt"`
}

type NewTicketCalledEvent struct {
	Type   string       `json:"type"`
	Ticket CalledTicket `json:"ticket"`
}

func NewTicketCalled(t Ticket) NewTicketCalledEvent {
	return NewTicketCalledEvent{
		Type: EventNewTicketCalled,
		Ticket: CalledTicket{
			ID:       t.ID,
			Number:   t.Number,
			QueueID:  t.QueueID,
			Status:   t.Status,
			CalledAt: t.CalledAt,
		},
	}
}

// CurrentNumberEvent carries the last called number, or null when
// nothing has been called yet.
type CurrentNumberEvent struct {
	Type   string  `json:"type"`
	Number *string `json:"number"`
}

func NewCurrentNumber(number *string) CurrentNumberEvent {
	return CurrentNumberEvent{Type: EventCurrentNumber, Number: number}
}

// Lifecycle event types published to the event bus.
const (
	TicketCreatedEvent = "ticket.created"
	TicketCalledEvent  = "ticket.called"
	TicketDoneEvent    = "ticket.done"
	TicketSkippedEvent = "ticket.skipped"
)

type TicketLifecycleEvent struct {
	Type       string       `json:"type"`
	TicketID   string       `json:"ticketId"`
	QueueID    string       `json:"queueId"`
	Number     string       `json:"number"`
	Status     TicketStatus `json:"status"`
	OccurredAt time.Time    `json:"occurredAt"`
}

func NewTicketLifecycleEvent(eventType string, t Ticket, at time.Time) TicketLifecycleEvent {
	return TicketLifecycleEvent{
		Type:       eventType,
		TicketID:   t.ID,
		QueueID:    t.QueueID,
		Number:     t.Number,
		Status:     t.Status,
		OccurredAt: at.UTC(),
	}
}
