// Package queuetest holds behaviour checks shared by every queue.Store.
package queuetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"
	"fast-queue/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SeedQueue inserts an active queue owned by establishmentID.
func SeedQueue(t *testing.T, s queue.Store, id, establishmentID string, avg int) models.Queue {
	t.Helper()
	q := models.Queue{
		ID:                   id,
		Title:                "Queue " + id,
		AverageTimeInMinutes: avg,
		IsActive:             true,
		EstablishmentID:      establishmentID,
		CreatedAt:            time.Now().UTC(),
	}
	require.NoError(t, s.CreateQueue(context.Background(), &q))
	return q
}

// SeedTicket inserts a ticket with the given number and status.
func SeedTicket(t *testing.T, s queue.Store, id, queueID string, seq uint64, status models.TicketStatus) models.Ticket {
	t.Helper()
	tk := models.Ticket{
		ID:        id,
		QueueID:   queueID,
		Number:    queue.FormatNumber(seq),
		Seq:       seq,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTicket(context.Background(), &tk))
	return tk
}

// RunStoreTests checks the contract of queue.Store against a fresh store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) queue.Store) {
	ctx := context.Background()

	t.Run("queue lookups", func(t *testing.T) {
		s := newStore(t)
		SeedQueue(t, s, "q1", "est-1", 5)
		SeedQueue(t, s, "q2", "est-2", 5)

		q, err := s.FindQueue(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, "est-1", q.EstablishmentID)
		assert.True(t, q.IsActive)

		_, err = s.FindQueue(ctx, "missing")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))

		owned, err := s.FindQueuesByEstablishment(ctx, "est-1")
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "q1", owned[0].ID)

		require.NoError(t, s.SetQueueActive(ctx, "q1", false))
		q, err = s.FindQueue(ctx, "q1")
		require.NoError(t, err)
		assert.False(t, q.IsActive)

		assert.True(t, errors.Is(s.SetQueueActive(ctx, "missing", true), apperr.ErrNotFound))
	})

	t.Run("highest number and duplicate numbers", func(t *testing.T) {
		s := newStore(t)
		SeedQueue(t, s, "q1", "est-1", 5)

		highest, err := s.FindHighestNumber(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), highest)

		SeedTicket(t, s, "t9", "q1", 9, models.TicketWaiting)
		SeedTicket(t, s, "t10", "q1", 10, models.TicketWaiting)

		highest, err = s.FindHighestNumber(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), highest, "numeric, not lexicographic")

		dup := models.Ticket{ID: "dup", QueueID: "q1", Number: "10", Seq: 10, Status: models.TicketWaiting, CreatedAt: time.Now()}
		err = s.CreateTicket(ctx, &dup)
		assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	})

	t.Run("ordering and filters", func(t *testing.T) {
		s := newStore(t)
		SeedQueue(t, s, "q1", "est-1", 5)
		SeedQueue(t, s, "q2", "est-1", 5)
		SeedTicket(t, s, "t10", "q1", 10, models.TicketWaiting)
		SeedTicket(t, s, "t2", "q1", 2, models.TicketWaiting)
		SeedTicket(t, s, "t1", "q1", 1, models.TicketCalled)
		SeedTicket(t, s, "t3", "q1", 3, models.TicketDone)
		SeedTicket(t, s, "other", "q2", 1, models.TicketWaiting)

		all, err := s.FindTicketsByQueue(ctx, "q1", models.TicketFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"1", "2", "3", "10"}, numbers(all))

		waiting, err := s.FindTicketsByQueue(ctx, "q1", models.TicketFilter{Statuses: []models.TicketStatus{models.TicketWaiting}})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "10"}, numbers(waiting))

		n, err := s.CountTicketsByQueue(ctx, "q1", models.TicketFilter{
			Statuses: []models.TicketStatus{models.TicketWaiting},
			BelowSeq: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		first, err := s.FindFirstWaitingOrderedByNumber(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, "t2", first.ID)

		latest, err := s.FindLatestCalled(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, "t1", latest.ID)

		_, err = s.FindLatestCalled(ctx, "q2")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("find ticket scoped by queue", func(t *testing.T) {
		s := newStore(t)
		SeedQueue(t, s, "q1", "est-1", 5)
		SeedTicket(t, s, "t1", "q1", 1, models.TicketWaiting)

		tk, err := s.FindTicket(ctx, "", "t1")
		require.NoError(t, err)
		assert.Equal(t, "q1", tk.QueueID)

		_, err = s.FindTicket(ctx, "q-other", "t1")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))

		_, err = s.FindTicket(ctx, "q1", "missing")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("conditional status update", func(t *testing.T) {
		s := newStore(t)
		SeedQueue(t, s, "q1", "est-1", 5)
		SeedTicket(t, s, "t1", "q1", 1, models.TicketWaiting)

		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		changed, err := s.UpdateTicketStatus(ctx, "t1", []models.TicketStatus{models.TicketWaiting}, models.TicketCalled, &at)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.UpdateTicketStatus(ctx, "t1", []models.TicketStatus{models.TicketWaiting}, models.TicketCalled, &at)
		require.NoError(t, err)
		assert.False(t, changed, "status no longer WAITING")

		tk, err := s.FindTicket(ctx, "q1", "t1")
		require.NoError(t, err)
		assert.Equal(t, models.TicketCalled, tk.Status)
		require.NotNil(t, tk.CalledAt)
		assert.True(t, at.Equal(*tk.CalledAt))

		changed, err = s.UpdateTicketStatus(ctx, "t1", []models.TicketStatus{models.TicketWaiting, models.TicketCalled}, models.TicketDone, nil)
		require.NoError(t, err)
		assert.True(t, changed)

		tk, err = s.FindTicket(ctx, "q1", "t1")
		require.NoError(t, err)
		assert.Equal(t, models.TicketDone, tk.Status)
		require.NotNil(t, tk.CalledAt, "calledAt survives later transitions")

		changed, err = s.UpdateTicketStatus(ctx, "missing", []models.TicketStatus{models.TicketWaiting}, models.TicketDone, nil)
		require.NoError(t, err)
		assert.False(t, changed)
	})
}

func numbers(tickets []models.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Number)
	}
	return out
}
