package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/database/memory"
	"fast-queue/internal/models"
	"fast-queue/internal/queue"
	"fast-queue/internal/queue/queuetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) TicketCalled(ctx context.Context, t models.Ticket) {
	m.Called(ctx, t)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTicketEvent(ctx context.Context, eventType string, t models.Ticket) error {
	args := m.Called(ctx, eventType, t)
	return args.Error(0)
}

var owner = models.AuthContext{EstablishmentID: "est-1"}

func newService(t *testing.T) (*queue.Service, *memory.Store, *MockBroadcaster) {
	t.Helper()
	store := memory.New()
	b := &MockBroadcaster{}
	svc := queue.NewService(store, queue.NewKeyedLocker(), b, nil, nil)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.Clock = func() time.Time { return fixed }
	return svc, store, b
}

func TestCreateTicketNumbersStartAtOne(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)

	first, err := svc.CreateTicket(context.Background(), "q1")
	require.NoError(t, err)
	second, err := svc.CreateTicket(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, "1", first.Number)
	assert.Equal(t, "2", second.Number)
	assert.Equal(t, models.TicketWaiting, first.Status)
	assert.Nil(t, first.CalledAt)
}

func TestCreateTicketRejectsUnknownAndInactiveQueues(t *testing.T) {
	svc, store, _ := newService(t)
	q := queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	require.NoError(t, store.SetQueueActive(context.Background(), q.ID, false))

	_, err := svc.CreateTicket(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.CreateTicket(context.Background(), "q1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	highest, err := store.FindHighestNumber(context.Background(), "q1")
	require.NoError(t, err)
	assert.Zero(t, highest)
}

func TestConcurrentCreateTicketIsGapFree(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedQueue(t, store, "q2", "est-1", 5)

	const n = 100
	var wg sync.WaitGroup
	numbers := make(chan string, 2*n)
	for i := 0; i < n; i++ {
		for _, qid := range []string{"q1", "q2"} {
			wg.Add(1)
			go func(qid string) {
				defer wg.Done()
				tk, err := svc.CreateTicket(context.Background(), qid)
				if assert.NoError(t, err) && qid == "q1" {
					numbers <- tk.Number
				}
			}(qid)
		}
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
	for i := uint64(1); i <= n; i++ {
		assert.True(t, seen[queue.FormatNumber(i)], "missing number %d", i)
	}
}

type failingStore struct {
	*memory.Store
	failNext bool
}

func (f *failingStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if f.failNext {
		f.failNext = false
		return errors.New("disk full")
	}
	return f.Store.CreateTicket(ctx, t)
}

func TestFailedWriteDoesNotConsumeNumber(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	svc := queue.NewService(store, queue.NewKeyedLocker(), nil, nil, nil)

	_, err := svc.CreateTicket(context.Background(), "q1")
	require.NoError(t, err)

	store.failNext = true
	_, err = svc.CreateTicket(context.Background(), "q1")
	assert.True(t, errors.Is(err, apperr.ErrStore), "got %v", err)

	tk, err := svc.CreateTicket(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "2", tk.Number)
}

func TestCallNextPicksLowestWaiting(t *testing.T) {
	svc, store, b := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "t10", "q1", 10, models.TicketWaiting)
	queuetest.SeedTicket(t, store, "t2", "q1", 2, models.TicketWaiting)
	queuetest.SeedTicket(t, store, "t1", "q1", 1, models.TicketDone)

	b.On("TicketCalled", mock.Anything, mock.MatchedBy(func(tk models.Ticket) bool {
		return tk.ID == "t2" && tk.Status == models.TicketCalled && tk.CalledAt != nil
	})).Once()

	called, err := svc.CallNext(context.Background(), owner, "q1")
	require.NoError(t, err)
	assert.Equal(t, "t2", called.ID)
	assert.Equal(t, "2", called.Number)
	assert.Equal(t, models.TicketCalled, called.Status)
	require.NotNil(t, called.CalledAt)

	other, err := store.FindTicket(context.Background(), "q1", "t10")
	require.NoError(t, err)
	assert.Equal(t, models.TicketWaiting, other.Status)

	b.AssertExpectations(t)
}

func TestCallNextEmptyQueue(t *testing.T) {
	svc, store, b := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "t1", "q1", 1, models.TicketCalled)

	_, err := svc.CallNext(context.Background(), owner, "q1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
	b.AssertNotCalled(t, "TicketCalled", mock.Anything, mock.Anything)
}

func TestCallNextRequiresOwnership(t *testing.T) {
	svc, store, b := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "t1", "q1", 1, models.TicketWaiting)

	_, err := svc.CallNext(context.Background(), models.AuthContext{EstablishmentID: "est-2"}, "q1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	tk, err := store.FindTicket(context.Background(), "q1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketWaiting, tk.Status)
	b.AssertNotCalled(t, "TicketCalled", mock.Anything, mock.Anything)
}

func TestConcurrentCallNextNeverCallsTwice(t *testing.T) {
	svc, store, b := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	for i := uint64(1); i <= 10; i++ {
		queuetest.SeedTicket(t, store, "t"+queue.FormatNumber(i), "q1", i, models.TicketWaiting)
	}
	b.On("TicketCalled", mock.Anything, mock.Anything)

	var wg sync.WaitGroup
	results := make(chan string, 15)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, err := svc.CallNext(context.Background(), owner, "q1")
			if err != nil {
				assert.True(t, errors.Is(err, apperr.ErrInvalidState))
				return
			}
			results <- tk.ID
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for id := range results {
		assert.False(t, seen[id], "ticket %s called twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, 10)
	b.AssertNumberOfCalls(t, "TicketCalled", 10)
}

func TestMarkDoneAndSkip(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "called", "q1", 1, models.TicketCalled)
	queuetest.SeedTicket(t, store, "waiting", "q1", 2, models.TicketWaiting)

	done, err := svc.MarkDone(context.Background(), owner, "called")
	require.NoError(t, err)
	assert.Equal(t, models.TicketDone, done.Status)

	skipped, err := svc.MarkSkip(context.Background(), owner, "waiting")
	require.NoError(t, err)
	assert.Equal(t, models.TicketSkipped, skipped.Status)
	assert.Nil(t, skipped.CalledAt)
}

func TestTerminalTicketsRejectTransitions(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "done", "q1", 1, models.TicketDone)
	queuetest.SeedTicket(t, store, "skipped", "q1", 2, models.TicketSkipped)

	for _, id := range []string{"done", "skipped"} {
		_, err := svc.MarkDone(context.Background(), owner, id)
		assert.True(t, errors.Is(err, apperr.ErrInvalidState), id)
		_, err = svc.MarkSkip(context.Background(), owner, id)
		assert.True(t, errors.Is(err, apperr.ErrInvalidState), id)
	}

	tk, err := store.FindTicket(context.Background(), "q1", "done")
	require.NoError(t, err)
	assert.Equal(t, models.TicketDone, tk.Status)
}

func TestMarkDoneUnknownOrForeignTicket(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	queuetest.SeedTicket(t, store, "t1", "q1", 1, models.TicketCalled)

	_, err := svc.MarkDone(context.Background(), owner, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = svc.MarkDone(context.Background(), models.AuthContext{EstablishmentID: "est-2"}, "t1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetTicketEstimate(t *testing.T) {
	svc, store, b := newService(t)
	b.On("TicketCalled", mock.Anything, mock.Anything)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	for i := uint64(1); i <= 3; i++ {
		queuetest.SeedTicket(t, store, "t"+queue.FormatNumber(i), "q1", i, models.TicketWaiting)
	}

	view, err := svc.GetTicket(context.Background(), "q1", "t3")
	require.NoError(t, err)
	assert.Equal(t, 10, view.AverageToBeCalled)

	_, err = svc.CallNext(context.Background(), owner, "q1")
	require.NoError(t, err)

	view, err = svc.GetTicket(context.Background(), "q1", "t3")
	require.NoError(t, err)
	assert.Equal(t, 5, view.AverageToBeCalled)

	view, err = svc.GetTicket(context.Background(), "q1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, view.AverageToBeCalled)

	_, err = svc.GetTicket(context.Background(), "q1", "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCurrentNumber(t *testing.T) {
	svc, store, _ := newService(t)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)

	n, err := svc.CurrentNumber(context.Background(), "q1")
	require.NoError(t, err)
	assert.Nil(t, n)

	queuetest.SeedTicket(t, store, "t1", "q1", 1, models.TicketCalled)
	queuetest.SeedTicket(t, store, "t2", "q1", 2, models.TicketCalled)
	n, err = svc.CurrentNumber(context.Background(), "q1")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "2", *n)
}

func TestQueueManagement(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.CreateQueue(context.Background(), owner, queue.CreateQueueInput{Title: "Caixa", AverageTimeInMinutes: 0})
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	q, err := svc.CreateQueue(context.Background(), owner, queue.CreateQueueInput{Title: "Caixa", AverageTimeInMinutes: 4})
	require.NoError(t, err)
	assert.False(t, q.IsActive, "queues start inactive")

	_, err = svc.CreateTicket(context.Background(), q.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	_, err = svc.SetQueueActive(context.Background(), models.AuthContext{EstablishmentID: "est-2"}, q.ID, true)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	q, err = svc.SetQueueActive(context.Background(), owner, q.ID, true)
	require.NoError(t, err)
	assert.True(t, q.IsActive)

	_, err = svc.CreateTicket(context.Background(), q.ID)
	require.NoError(t, err)

	summaries, err := svc.ListQueues(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Tickets)

	tickets, err := svc.ListTickets(context.Background(), owner, q.ID, []models.TicketStatus{models.TicketCalled})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	exists, err := svc.QueueExists(context.Background(), q.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = svc.QueueExists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLifecycleEventsAreBestEffort(t *testing.T) {
	store := memory.New()
	pub := &MockPublisher{}
	svc := queue.NewService(store, queue.NewKeyedLocker(), nil, pub, nil)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)

	pub.On("PublishTicketEvent", mock.Anything, models.TicketCreatedEvent, mock.Anything).Return(errors.New("broker down")).Once()
	pub.On("PublishTicketEvent", mock.Anything, models.TicketCalledEvent, mock.Anything).Return(nil).Once()
	pub.On("PublishTicketEvent", mock.Anything, models.TicketDoneEvent, mock.Anything).Return(nil).Once()

	tk, err := svc.CreateTicket(context.Background(), "q1")
	require.NoError(t, err, "publish failure must not fail the operation")

	_, err = svc.CallNext(context.Background(), owner, "q1")
	require.NoError(t, err)

	_, err = svc.MarkDone(context.Background(), owner, tk.ID)
	require.NoError(t, err)

	pub.AssertExpectations(t)
}

func TestSlowPublisherDoesNotSerializeCallNext(t *testing.T) {
	store := memory.New()
	pub := &MockPublisher{}
	svc := queue.NewService(store, queue.NewKeyedLocker(), nil, pub, nil)
	queuetest.SeedQueue(t, store, "q1", "est-1", 5)
	for i := uint64(1); i <= 4; i++ {
		queuetest.SeedTicket(t, store, "t"+queue.FormatNumber(i), "q1", i, models.TicketWaiting)
	}

	const delay = 300 * time.Millisecond
	pub.On("PublishTicketEvent", mock.Anything, models.TicketCalledEvent, mock.Anything).
		After(delay).
		Return(errors.New("broker down"))

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CallNext(context.Background(), owner, "q1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*delay, "call-next waited on the publisher while holding the queue lock")
	pub.AssertNumberOfCalls(t, "PublishTicketEvent", 4)

	called, err := store.FindTicketsByQueue(context.Background(), "q1", models.TicketFilter{
		Statuses: []models.TicketStatus{models.TicketCalled},
	})
	require.NoError(t, err)
	assert.Len(t, called, 4)
}
