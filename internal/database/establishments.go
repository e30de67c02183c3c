package database

import (
	"context"

	"fast-queue/internal/models"
)

func (d *DB) CreateEstablishment(ctx context.Context, e *models.Establishment) error {
	_, err := d.Bun.NewInsert().Model(e).Exec(ctx)
	return classify("CreateEstablishment", err, "establishment")
}

func (d *DB) FindEstablishmentByEmail(ctx context.Context, email string) (*models.Establishment, error) {
	var e models.Establishment
	err := d.Bun.NewSelect().
		Model(&e).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindEstablishmentByEmail", err, "establishment")
	}
	return &e, nil
}

func (d *DB) FindEstablishmentBySlug(ctx context.Context, slug string) (*models.Establishment, error) {
	var e models.Establishment
	err := d.Bun.NewSelect().
		Model(&e).
		Where("slug = ?", slug).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify("FindEstablishmentBySlug", err, "establishment")
	}
	return &e, nil
}
