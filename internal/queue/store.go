package queue

import (
	"context"
	"time"

	"fast-queue/internal/models"
)

// Store is the persistence port used by Service. Lookups of missing rows
// return an apperr NotFound error. CreateTicket returns an apperr Conflict
// error when (queue, number) already exists.
type Store interface {
	CreateQueue(ctx context.Context, q *models.Queue) error
	FindQueue(ctx context.Context, queueID string) (*models.Queue, error)
	FindQueuesByEstablishment(ctx context.Context, establishmentID string) ([]models.Queue, error)
	SetQueueActive(ctx context.Context, queueID string, active bool) error

	CreateTicket(ctx context.Context, t *models.Ticket) error
	// FindTicket looks a ticket up by id. An empty queueID matches any queue.
	FindTicket(ctx context.Context, queueID, ticketID string) (*models.Ticket, error)
	FindTicketsByQueue(ctx context.Context, queueID string, filter models.TicketFilter) ([]models.Ticket, error)
	CountTicketsByQueue(ctx context.Context, queueID string, filter models.TicketFilter) (int, error)
	FindFirstWaitingOrderedByNumber(ctx context.Context, queueID string) (*models.Ticket, error)
	FindLatestCalled(ctx context.Context, queueID string) (*models.Ticket, error)
	// FindHighestNumber returns 0 for a queue without tickets.
	FindHighestNumber(ctx context.Context, queueID string) (uint64, error)
	// UpdateTicketStatus moves a ticket to `to` only if its current status
	// is one of `from`. It reports whether a row changed.
	UpdateTicketStatus(ctx context.Context, ticketID string, from []models.TicketStatus, to models.TicketStatus, calledAt *time.Time) (bool, error)
}
