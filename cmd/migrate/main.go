// Command migrate manages the fast-queue schema.
//
//	migrate up          apply pending migrations (postgres) or create tables (sqlite)
//	migrate down        roll back every migration (postgres) or drop tables (sqlite)
//	migrate reset       drop and recreate everything
//	migrate to VERSION  migrate postgres to an exact version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fast-queue/internal/config"
	"fast-queue/internal/database"
	"fast-queue/internal/database/migrations"
	"fast-queue/internal/logger"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up|down|reset|to VERSION")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLoggerWithWriter(os.Stdout)
	ctx := context.Background()

	var err error
	switch cfg.Store.Driver {
	case "postgres":
		err = runPostgres(cfg.Store, log, os.Args[1:])
	case "sqlite":
		err = runSQLite(ctx, cfg.Store, log, os.Args[1])
	default:
		err = fmt.Errorf("STORE_DRIVER %q has no schema to migrate", cfg.Store.Driver)
	}
	if err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	log.Info("MIGRATION", "Done.")
}

func runPostgres(cfg config.StoreConfig, log *logger.Logger, args []string) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN not set")
	}
	bunDB, err := database.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: cfg.MigrationsDir}, log)
	defer runner.Close()

	switch args[0] {
	case "up":
		return runner.RunMigrations()
	case "down":
		return runner.MigrateDown()
	case "reset":
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		return runner.RunMigrations()
	case "to":
		if len(args) < 2 {
			usage()
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return runner.MigrateTo(uint(version))
	}
	usage()
	return nil
}

func runSQLite(ctx context.Context, cfg config.StoreConfig, log *logger.Logger, cmd string) error {
	bunDB, err := database.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	steps := map[string][]func(context.Context, *bun.DB) error{
		"up":    {database.CreateSchema},
		"down":  {database.DropSchema},
		"reset": {database.DropSchema, database.CreateSchema},
	}[cmd]
	if steps == nil {
		usage()
	}
	for _, step := range steps {
		if err := step(ctx, bunDB); err != nil {
			return err
		}
	}
	log.LogDatabase(strings.ToUpper(cmd), "establishments, queues, tickets", fmt.Sprintf("SQLite schema applied to %s", cfg.SQLitePath))
	return nil
}
