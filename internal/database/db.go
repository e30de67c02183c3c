// Package database is the bun-backed store for establishments, queues and
// tickets. Postgres in production, SQLite for development and tests.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fast-queue/internal/apperr"
	"fast-queue/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// OpenPostgres opens a lib/pq pool without pinging it.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// OpenSQLite opens a SQLite database through sqliteshim. A single
// connection keeps shared in-memory databases consistent.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// CreateSchema creates the tables and indexes from the bun models. Postgres
// deployments use the SQL migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.Establishment)(nil),
		(*models.Queue)(nil),
		(*models.Ticket)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("tickets_queue_seq_uidx").
		Unique().
		Column("queue_id", "seq").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create tickets_queue_seq_uidx: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*models.Queue)(nil)).
		Index("queues_establishment_idx").
		Column("establishment_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create queues_establishment_idx: %w", err)
	}
	return nil
}

// DropSchema removes every table. Used by the migrate tool's reset.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{
		(*models.Ticket)(nil),
		(*models.Queue)(nil),
		(*models.Establishment)(nil),
	} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", model, err)
		}
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// classify maps driver errors to apperr kinds.
func classify(op string, err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(op, "%s not found", what)
	}
	if isUniqueViolation(err) {
		return apperr.Conflict(op, err, "duplicate %s", what)
	}
	if isForeignKeyViolation(err) {
		return apperr.NotFound(op, "%s references a missing record", what)
	}
	return apperr.Store(op, err)
}
