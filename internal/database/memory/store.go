// Package memory is a process-local store for development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"
)

type Store struct {
	mu             sync.RWMutex
	establishments map[string]models.Establishment
	queues         map[string]models.Queue
	tickets        map[string]models.Ticket
	numbers        map[string]map[uint64]string
}

func New() *Store {
	return &Store{
		establishments: make(map[string]models.Establishment),
		queues:         make(map[string]models.Queue),
		tickets:        make(map[string]models.Ticket),
		numbers:        make(map[string]map[uint64]string),
	}
}

func (s *Store) CreateEstablishment(_ context.Context, e *models.Establishment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.establishments {
		if existing.Email == e.Email {
			return apperr.Conflict("CreateEstablishment", nil, "email already registered")
		}
		if existing.Slug == e.Slug {
			return apperr.Conflict("CreateEstablishment", nil, "slug already registered")
		}
	}
	s.establishments[e.ID] = *e
	return nil
}

func (s *Store) FindEstablishmentByEmail(_ context.Context, email string) (*models.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.establishments {
		if e.Email == email {
			return &e, nil
		}
	}
	return nil, apperr.NotFound("FindEstablishmentByEmail", "establishment not found")
}

func (s *Store) FindEstablishmentBySlug(_ context.Context, slug string) (*models.Establishment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.establishments {
		if e.Slug == slug {
			return &e, nil
		}
	}
	return nil, apperr.NotFound("FindEstablishmentBySlug", "establishment not found")
}

func (s *Store) CreateQueue(_ context.Context, q *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[q.ID]; ok {
		return apperr.Conflict("CreateQueue", nil, "queue %s already exists", q.ID)
	}
	s.queues[q.ID] = *q
	return nil
}

func (s *Store) FindQueue(_ context.Context, queueID string) (*models.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[queueID]
	if !ok {
		return nil, apperr.NotFound("FindQueue", "queue %s not found", queueID)
	}
	return &q, nil
}

func (s *Store) FindQueuesByEstablishment(_ context.Context, establishmentID string) ([]models.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Queue{}
	for _, q := range s.queues {
		if q.EstablishmentID == establishmentID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SetQueueActive(_ context.Context, queueID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[queueID]
	if !ok {
		return apperr.NotFound("SetQueueActive", "queue %s not found", queueID)
	}
	q.IsActive = active
	s.queues[queueID] = q
	return nil
}

func (s *Store) CreateTicket(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNumber := s.numbers[t.QueueID]
	if byNumber == nil {
		byNumber = make(map[uint64]string)
		s.numbers[t.QueueID] = byNumber
	}
	if _, taken := byNumber[t.Seq]; taken {
		return apperr.Conflict("CreateTicket", nil, "number %s already issued in queue %s", t.Number, t.QueueID)
	}
	byNumber[t.Seq] = t.ID
	s.tickets[t.ID] = *t
	return nil
}

func (s *Store) FindTicket(_ context.Context, queueID, ticketID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok || (queueID != "" && t.QueueID != queueID) {
		return nil, apperr.NotFound("FindTicket", "ticket %s not found", ticketID)
	}
	return &t, nil
}

func (s *Store) FindTicketsByQueue(_ context.Context, queueID string, filter models.TicketFilter) ([]models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(queueID, filter), nil
}

func (s *Store) CountTicketsByQueue(_ context.Context, queueID string, filter models.TicketFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matching(queueID, filter)), nil
}

func (s *Store) FindFirstWaitingOrderedByNumber(_ context.Context, queueID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	waiting := s.matching(queueID, models.TicketFilter{Statuses: []models.TicketStatus{models.TicketWaiting}})
	if len(waiting) == 0 {
		return nil, apperr.NotFound("FindFirstWaitingOrderedByNumber", "no waiting tickets in queue %s", queueID)
	}
	return &waiting[0], nil
}

func (s *Store) FindLatestCalled(_ context.Context, queueID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	called := s.matching(queueID, models.TicketFilter{Statuses: []models.TicketStatus{models.TicketCalled}})
	if len(called) == 0 {
		return nil, apperr.NotFound("FindLatestCalled", "no called tickets in queue %s", queueID)
	}
	return &called[len(called)-1], nil
}

func (s *Store) FindHighestNumber(_ context.Context, queueID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var highest uint64
	for seq := range s.numbers[queueID] {
		if seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (s *Store) UpdateTicketStatus(_ context.Context, ticketID string, from []models.TicketStatus, to models.TicketStatus, calledAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || !slices.Contains(from, t.Status) {
		return false, nil
	}
	t.Status = to
	if calledAt != nil {
		at := *calledAt
		t.CalledAt = &at
	}
	s.tickets[ticketID] = t
	return true, nil
}

// matching returns copies ordered by number. Callers hold s.mu.
func (s *Store) matching(queueID string, filter models.TicketFilter) []models.Ticket {
	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.QueueID != queueID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		if filter.BelowSeq > 0 && t.Seq >= filter.BelowSeq {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
