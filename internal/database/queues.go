package database

import (
	"context"
	"fmt"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"
)

func (d *DB) CreateQueue(ctx context.Context, q *models.Queue) error {
	_, err := d.Bun.NewInsert().Model(q).Exec(ctx)
	return classify("CreateQueue", err, "queue "+q.ID)
}

func (d *DB) FindQueue(ctx context.Context, queueID string) (*models.Queue, error) {
	var q models.Queue
	err := d.Bun.NewSelect().
		Model(&q).
		Where("id = ?", queueID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindQueue", err, fmt.Sprintf("queue %s", queueID))
	}
	return &q, nil
}

func (d *DB) FindQueuesByEstablishment(ctx context.Context, establishmentID string) ([]models.Queue, error) {
	queues := []models.Queue{}
	err := d.Bun.NewSelect().
		Model(&queues).
		Where("establishment_id = ?", establishmentID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify("FindQueuesByEstablishment", err, "queues")
	}
	return queues, nil
}

func (d *DB) SetQueueActive(ctx context.Context, queueID string, active bool) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Queue)(nil)).
		Set("is_active = ?", active).
		Where("id = ?", queueID).
		Exec(ctx)
	if err != nil {
		return classify("SetQueueActive", err, "queue "+queueID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Store("SetQueueActive", err)
	}
	if n == 0 {
		return apperr.NotFound("SetQueueActive", "queue %s not found", queueID)
	}
	return nil
}
