package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/logger"
	"fast-queue/internal/models"

	"github.com/google/uuid"
)

// Broadcaster is told about every ticket that has just been called. It must
// not block on slow subscribers.
type Broadcaster interface {
	TicketCalled(ctx context.Context, t models.Ticket)
}

// EventPublisher receives lifecycle events after they are committed.
type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, eventType string, t models.Ticket) error
}

type Service struct {
	Store       Store
	Allocator   Allocator
	Locker      Locker
	Broadcaster Broadcaster
	Events      EventPublisher
	Logger      *logger.Logger

	Clock func() time.Time
	NewID func() string
}

func NewService(store Store, locker Locker, broadcaster Broadcaster, events EventPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		Store:       store,
		Allocator:   NewLockingAllocator(store, locker),
		Locker:      locker,
		Broadcaster: broadcaster,
		Events:      events,
		Logger:      log,
		Clock:       time.Now,
		NewID:       uuid.NewString,
	}
}

type CreateQueueInput struct {
	Title                string `json:"title" validate:"required,max=120"`
	AverageTimeInMinutes int    `json:"averageTimeInMinutes" validate:"required,gt=0"`
	IsActive             *bool  `json:"isActive"`
}

func (s *Service) CreateQueue(ctx context.Context, auth models.AuthContext, in CreateQueueInput) (*models.Queue, error) {
	if in.AverageTimeInMinutes <= 0 {
		return nil, apperr.InvalidState("CreateQueue", "averageTimeInMinutes must be a positive integer")
	}
	q := &models.Queue{
		ID:                   s.NewID(),
		Title:                in.Title,
		AverageTimeInMinutes: in.AverageTimeInMinutes,
		IsActive:             in.IsActive != nil && *in.IsActive,
		EstablishmentID:      auth.EstablishmentID,
		CreatedAt:            s.Clock().UTC(),
	}
	if err := s.Store.CreateQueue(ctx, q); err != nil {
		return nil, apperr.Store("CreateQueue", err)
	}
	s.Logger.Info("QUEUE", fmt.Sprintf("Queue %s created for establishment %s", q.ID, auth.EstablishmentID))
	return q, nil
}

// SetQueueActive opens or closes a queue for new tickets.
func (s *Service) SetQueueActive(ctx context.Context, auth models.AuthContext, queueID string, active bool) (*models.Queue, error) {
	q, err := s.ownedQueue(ctx, "SetQueueActive", auth, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SetQueueActive(ctx, queueID, active); err != nil {
		return nil, apperr.Store("SetQueueActive", err)
	}
	q.IsActive = active
	s.Logger.Info("QUEUE", fmt.Sprintf("Queue %s active=%t", queueID, active))
	return q, nil
}

func (s *Service) GetQueue(ctx context.Context, auth models.AuthContext, queueID string) (*models.Queue, error) {
	return s.ownedQueue(ctx, "GetQueue", auth, queueID)
}

// ListQueues returns the establishment's queues with their ticket counts.
func (s *Service) ListQueues(ctx context.Context, auth models.AuthContext) ([]models.QueueSummary, error) {
	queues, err := s.Store.FindQueuesByEstablishment(ctx, auth.EstablishmentID)
	if err != nil {
		return nil, apperr.Store("ListQueues", err)
	}
	out := make([]models.QueueSummary, 0, len(queues))
	for _, q := range queues {
		n, err := s.Store.CountTicketsByQueue(ctx, q.ID, models.TicketFilter{})
		if err != nil {
			return nil, apperr.Store("ListQueues", err)
		}
		out = append(out, models.QueueSummary{Queue: q, Tickets: n})
	}
	return out, nil
}

// ListTickets returns a queue's tickets in ascending number order.
func (s *Service) ListTickets(ctx context.Context, auth models.AuthContext, queueID string, statuses []models.TicketStatus) ([]models.Ticket, error) {
	if _, err := s.ownedQueue(ctx, "ListTickets", auth, queueID); err != nil {
		return nil, err
	}
	tickets, err := s.Store.FindTicketsByQueue(ctx, queueID, models.TicketFilter{Statuses: statuses})
	if err != nil {
		return nil, apperr.Store("ListTickets", err)
	}
	return tickets, nil
}

// QueueExists is used by realtime transports before subscribing.
func (s *Service) QueueExists(ctx context.Context, queueID string) (bool, error) {
	_, err := s.Store.FindQueue(ctx, queueID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Store("QueueExists", err)
	}
	return true, nil
}

// CreateTicket issues the next number in an active queue.
func (s *Service) CreateTicket(ctx context.Context, queueID string) (*models.Ticket, error) {
	q, err := s.Store.FindQueue(ctx, queueID)
	if err != nil {
		return nil, apperr.Store("CreateTicket", err)
	}
	if !q.IsActive {
		return nil, apperr.InvalidState("CreateTicket", "queue %s is not active", queueID)
	}

	var ticket models.Ticket
	_, err = s.Allocator.Allocate(ctx, queueID, func(seq uint64, number string) error {
		ticket = models.Ticket{
			ID:        s.NewID(),
			QueueID:   queueID,
			Number:    number,
			Seq:       seq,
			Status:    models.TicketWaiting,
			CreatedAt: s.Clock().UTC(),
		}
		return s.Store.CreateTicket(ctx, &ticket)
	})
	if err != nil {
		s.Logger.Error("QUEUE", fmt.Sprintf("Failed to create ticket in queue %s: %v", queueID, err))
		return nil, err
	}

	s.Logger.LogTicket("CREATE", ticket.ID, fmt.Sprintf("queue %s number %s", queueID, ticket.Number))
	s.publish(ctx, models.TicketCreatedEvent, ticket)
	return &ticket, nil
}

// GetTicket is public: anyone holding the ticket id may look it up.
func (s *Service) GetTicket(ctx context.Context, queueID, ticketID string) (*models.TicketView, error) {
	q, err := s.Store.FindQueue(ctx, queueID)
	if err != nil {
		return nil, apperr.Store("GetTicket", err)
	}
	t, err := s.Store.FindTicket(ctx, queueID, ticketID)
	if err != nil {
		return nil, apperr.Store("GetTicket", err)
	}

	seq, err := ParseNumber(t.Number)
	if err != nil {
		return nil, apperr.Store("GetTicket", err)
	}
	ahead, err := s.Store.CountTicketsByQueue(ctx, queueID, models.TicketFilter{
		Statuses: []models.TicketStatus{models.TicketWaiting},
		BelowSeq: seq,
	})
	if err != nil {
		return nil, apperr.Store("GetTicket", err)
	}

	return &models.TicketView{Ticket: *t, AverageToBeCalled: Estimate(*q, *t, ahead)}, nil
}

// CallNext moves the lowest-numbered WAITING ticket to CALLED and
// broadcasts it to the queue's subscribers.
func (s *Service) CallNext(ctx context.Context, auth models.AuthContext, queueID string) (*models.Ticket, error) {
	if _, err := s.ownedQueue(ctx, "CallNext", auth, queueID); err != nil {
		return nil, err
	}

	t, err := s.callNextLocked(ctx, queueID)
	if err != nil {
		return nil, err
	}
	// Published after the call lock is released.
	s.publish(ctx, models.TicketCalledEvent, *t)
	return t, nil
}

func (s *Service) callNextLocked(ctx context.Context, queueID string) (*models.Ticket, error) {
	unlock, err := s.Locker.Lock(ctx, callLockKey(queueID))
	if err != nil {
		return nil, apperr.Store("CallNext", fmt.Errorf("lock queue %s: %w", queueID, err))
	}
	defer unlock()

	for {
		t, err := s.Store.FindFirstWaitingOrderedByNumber(ctx, queueID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.InvalidState("CallNext", "queue %s has no waiting tickets", queueID)
		}
		if err != nil {
			return nil, apperr.Store("CallNext", err)
		}

		now := s.Clock().UTC()
		changed, err := s.Store.UpdateTicketStatus(ctx, t.ID, []models.TicketStatus{models.TicketWaiting}, models.TicketCalled, &now)
		if err != nil {
			return nil, apperr.Store("CallNext", err)
		}
		if !changed {
			// Finished or skipped between the read and the update; pick again.
			continue
		}

		t.Status = models.TicketCalled
		t.CalledAt = &now
		s.Logger.LogTicket("CALL", t.ID, fmt.Sprintf("queue %s number %s", queueID, t.Number))

		if s.Broadcaster != nil {
			s.Broadcaster.TicketCalled(ctx, *t)
		}
		return t, nil
	}
}

func (s *Service) MarkDone(ctx context.Context, auth models.AuthContext, ticketID string) (*models.Ticket, error) {
	return s.finish(ctx, "MarkDone", auth, ticketID, models.TicketDone, models.TicketDoneEvent)
}

func (s *Service) MarkSkip(ctx context.Context, auth models.AuthContext, ticketID string) (*models.Ticket, error) {
	return s.finish(ctx, "MarkSkip", auth, ticketID, models.TicketSkipped, models.TicketSkippedEvent)
}

func (s *Service) finish(ctx context.Context, op string, auth models.AuthContext, ticketID string, to models.TicketStatus, eventType string) (*models.Ticket, error) {
	t, err := s.Store.FindTicket(ctx, "", ticketID)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	if _, err := s.ownedQueue(ctx, op, auth, t.QueueID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound(op, "ticket %s not found", ticketID)
		}
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, apperr.InvalidState(op, "ticket %s is already %s", ticketID, t.Status)
	}

	from := []models.TicketStatus{models.TicketWaiting, models.TicketCalled}
	changed, err := s.Store.UpdateTicketStatus(ctx, ticketID, from, to, nil)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	if !changed {
		return nil, apperr.InvalidState(op, "ticket %s is already finished", ticketID)
	}

	t.Status = to
	s.Logger.LogTicket(string(to), t.ID, fmt.Sprintf("queue %s number %s", t.QueueID, t.Number))
	s.publish(ctx, eventType, *t)
	return t, nil
}

// CurrentNumber returns the number of the most recently called ticket, or
// nil when nothing has been called.
func (s *Service) CurrentNumber(ctx context.Context, queueID string) (*string, error) {
	t, err := s.Store.FindLatestCalled(ctx, queueID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("CurrentNumber", err)
	}
	n := t.Number
	return &n, nil
}

func (s *Service) ownedQueue(ctx context.Context, op string, auth models.AuthContext, queueID string) (*models.Queue, error) {
	q, err := s.Store.FindQueue(ctx, queueID)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	if auth.EstablishmentID == "" || q.EstablishmentID != auth.EstablishmentID {
		return nil, apperr.NotFound(op, "queue %s not found", queueID)
	}
	return q, nil
}

func (s *Service) publish(ctx context.Context, eventType string, t models.Ticket) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishTicketEvent(ctx, eventType, t); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("Failed to publish %s for ticket %s: %v", eventType, t.ID, err))
	}
}
