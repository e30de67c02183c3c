package analytics

import (
	"context"
	"sort"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"
)

// TicketSource is the read side of the queue store.
type TicketSource interface {
	FindTicketsByQueue(ctx context.Context, queueID string, filter models.TicketFilter) ([]models.Ticket, error)
}

// Service aggregates ticket history per queue.
type Service struct {
	store TicketSource
}

func NewService(store TicketSource) *Service {
	return &Service{store: store}
}

// QueueStats summarises a queue's tickets.
type QueueStats struct {
	QueueID            string               `json:"queueId"`
	TotalTickets       int                  `json:"totalTickets"`
	Waiting            int                  `json:"waiting"`
	Called             int                  `json:"called"`
	Done               int                  `json:"done"`
	Skipped            int                  `json:"skipped"`
	AverageWaitMinutes float64              `json:"averageWaitMinutes"`
	DailyTickets       []DailyTicketMetrics `json:"dailyTickets"`
}

// DailyTicketMetrics contains metrics for a single day
type DailyTicketMetrics struct {
	Date    string `json:"date"`
	Tickets int    `json:"tickets"`
	Called  int    `json:"called"`
}

// GetQueueStats reads every ticket of the queue once. AverageWaitMinutes is
// measured from creation to call over tickets that have been called.
func (s *Service) GetQueueStats(ctx context.Context, queueID string) (*QueueStats, error) {
	tickets, err := s.store.FindTicketsByQueue(ctx, queueID, models.TicketFilter{})
	if err != nil {
		return nil, apperr.Store("GetQueueStats", err)
	}

	stats := &QueueStats{QueueID: queueID, TotalTickets: len(tickets), DailyTickets: []DailyTicketMetrics{}}
	days := map[string]*DailyTicketMetrics{}
	var waited time.Duration
	var calledCount int

	for _, t := range tickets {
		switch t.Status {
		case models.TicketWaiting:
			stats.Waiting++
		case models.TicketCalled:
			stats.Called++
		case models.TicketDone:
			stats.Done++
		case models.TicketSkipped:
			stats.Skipped++
		}

		date := t.CreatedAt.UTC().Format(time.DateOnly)
		day, ok := days[date]
		if !ok {
			day = &DailyTicketMetrics{Date: date}
			days[date] = day
		}
		day.Tickets++

		if t.CalledAt != nil {
			day.Called++
			calledCount++
			waited += t.CalledAt.Sub(t.CreatedAt)
		}
	}

	if calledCount > 0 {
		stats.AverageWaitMinutes = (waited / time.Duration(calledCount)).Minutes()
	}
	for _, day := range days {
		stats.DailyTickets = append(stats.DailyTickets, *day)
	}
	sort.Slice(stats.DailyTickets, func(i, j int) bool {
		return stats.DailyTickets[i].Date < stats.DailyTickets[j].Date
	})
	return stats, nil
}
