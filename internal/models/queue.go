package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Queue struct {
	bun.BaseModel `bun:"table:queues"`

	ID                   string    `bun:"id,pk" json:"id"`
	Title                string    `bun:"title,notnull" json:"title"`
	AverageTimeInMinutes int       `bun:"average_time_in_minutes,notnull" json:"averageTimeInMinutes"`
	IsActive             bool      `bun:"is_active,notnull,default:false" json:"isActive"`
	EstablishmentID      string    `bun:"establishment_id,notnull" json:"establishmentId"`
	CreatedAt            time.Time `bun:"created_at,notnull" json:"createdAt"`
}

type QueueSummary struct {
	Queue
	Tickets int `json:"tickets"`
}
