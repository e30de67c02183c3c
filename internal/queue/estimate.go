package queue

import "fast-queue/internal/models"

// Estimate returns the expected wait in minutes: the queue's average
// service time multiplied by the WAITING tickets ahead of t.
func Estimate(q models.Queue, t models.Ticket, waitingAhead int) int {
	if waitingAhead <= 0 {
		return 0
	}
	return q.AverageTimeInMinutes * waitingAhead
}
