package queue

import "fast-queue/internal/models"

func modelsQueue(avg int) models.Queue {
	return models.Queue{ID: "q", AverageTimeInMinutes: avg, IsActive: true}
}

func modelsTicket() models.Ticket {
	return models.Ticket{ID: "t", QueueID: "q", Number: "3", Seq: 3, Status: models.TicketWaiting}
}
