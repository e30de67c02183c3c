package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketWaiting TicketStatus = "WAITING"
	TicketCalled  TicketStatus = "CALLED"
	TicketDone    TicketStatus = "DONE"
	TicketSkipped TicketStatus = "SKIPPED"
)

// Terminal reports whether no further transition is allowed.
func (s TicketStatus) Terminal() bool {
	return s == TicketDone || s == TicketSkipped
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketWaiting, TicketCalled, TicketDone, TicketSkipped:
		return true
	}
	return false
}

// Ticket is a place in a queue. Number is the decimal wire form of Seq.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID        string       `bun:"id,pk" json:"id"`
	QueueID   string       `bun:"queue_id,notnull" json:"queueId"`
	Number    string       `bun:"number,notnull" json:"number"`
	Seq       uint64       `bun:"seq,notnull" json:"-"`
	Status    TicketStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time    `bun:"created_at,notnull" json:"createdAt"`
	CalledAt  *time.Time   `bun:"called_at" json:"calledAt"`
}

// TicketFilter narrows ticket lookups. Zero values match everything.
type TicketFilter struct {
	Statuses []TicketStatus
	// BelowSeq keeps tickets with Seq strictly lower than the value.
	BelowSeq uint64
}

// TicketView is a ticket plus its wait estimate in minutes.
type TicketView struct {
	Ticket
	AverageToBeCalled int `json:"averageToBeCalled"`
}
