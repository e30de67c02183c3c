package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"

	"github.com/uptrace/bun"
)

func (d *DB) CreateTicket(ctx context.Context, t *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(t).Exec(ctx)
	return classify("CreateTicket", err, fmt.Sprintf("ticket number %s in queue %s", t.Number, t.QueueID))
}

func (d *DB) FindTicket(ctx context.Context, queueID, ticketID string) (*models.Ticket, error) {
	var t models.Ticket
	q := d.Bun.NewSelect().
		Model(&t).
		Where("id = ?", ticketID)
	if queueID != "" {
		q = q.Where("queue_id = ?", queueID)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, classify("FindTicket", err, fmt.Sprintf("ticket %s", ticketID))
	}
	return &t, nil
}

func (d *DB) FindTicketsByQueue(ctx context.Context, queueID string, filter models.TicketFilter) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := filtered(d.Bun.NewSelect().Model(&tickets), queueID, filter).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify("FindTicketsByQueue", err, "tickets")
	}
	return tickets, nil
}

func (d *DB) CountTicketsByQueue(ctx context.Context, queueID string, filter models.TicketFilter) (int, error) {
	n, err := filtered(d.Bun.NewSelect().Model((*models.Ticket)(nil)), queueID, filter).Count(ctx)
	if err != nil {
		return 0, apperr.Store("CountTicketsByQueue", err)
	}
	return n, nil
}

func (d *DB) FindFirstWaitingOrderedByNumber(ctx context.Context, queueID string) (*models.Ticket, error) {
	var t models.Ticket
	err := d.Bun.NewSelect().
		Model(&t).
		Where("queue_id = ?", queueID).
		Where("status = ?", models.TicketWaiting).
		OrderExpr("seq ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindFirstWaitingOrderedByNumber", err, fmt.Sprintf("waiting ticket in queue %s", queueID))
	}
	return &t, nil
}

func (d *DB) FindLatestCalled(ctx context.Context, queueID string) (*models.Ticket, error) {
	var t models.Ticket
	err := d.Bun.NewSelect().
		Model(&t).
		Where("queue_id = ?", queueID).
		Where("status = ?", models.TicketCalled).
		OrderExpr("seq DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindLatestCalled", err, fmt.Sprintf("called ticket in queue %s", queueID))
	}
	return &t, nil
}

func (d *DB) FindHighestNumber(ctx context.Context, queueID string) (uint64, error) {
	var highest sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("MAX(seq)").
		Where("queue_id = ?", queueID).
		Scan(ctx, &highest)
	if err != nil {
		return 0, apperr.Store("FindHighestNumber", err)
	}
	if !highest.Valid || highest.Int64 < 0 {
		return 0, nil
	}
	return uint64(highest.Int64), nil
}

func (d *DB) UpdateTicketStatus(ctx context.Context, ticketID string, from []models.TicketStatus, to models.TicketStatus, calledAt *time.Time) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", to).
		Where("id = ?", ticketID).
		Where("status IN (?)", bun.In(from))
	if calledAt != nil {
		q = q.Set("called_at = ?", calledAt.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, apperr.Store("UpdateTicketStatus", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Store("UpdateTicketStatus", err)
	}
	return n == 1, nil
}

func filtered(q *bun.SelectQuery, queueID string, filter models.TicketFilter) *bun.SelectQuery {
	q = q.Where("queue_id = ?", queueID)
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(filter.Statuses))
	}
	if filter.BelowSeq > 0 {
		q = q.Where("seq < ?", filter.BelowSeq)
	}
	return q
}
