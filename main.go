package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fast-queue/internal/account"
	"fast-queue/internal/account/account_api"
	"fast-queue/internal/analytics"
	"fast-queue/internal/analytics/analytics_api"
	"fast-queue/internal/auth"
	"fast-queue/internal/config"
	"fast-queue/internal/database"
	"fast-queue/internal/database/memory"
	"fast-queue/internal/database/migrations"
	"fast-queue/internal/httpserver"
	"fast-queue/internal/kafka"
	"fast-queue/internal/logger"
	"fast-queue/internal/queue"
	"fast-queue/internal/queue/qr"
	"fast-queue/internal/queue/queue_api"
	queueredis "fast-queue/internal/queue/redis"
	"fast-queue/internal/realtime"
	"fast-queue/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// Store is everything the services need from persistence.
type Store interface {
	queue.Store
	account.Store
}

type storeHandle struct {
	Store
	health func(context.Context) error
	close  func() error
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("DATABASE", "Using in-process memory store, data is lost on restart")
		return &storeHandle{Store: memory.New(), close: func() error { return nil }}, nil

	case "sqlite":
		bunDB, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.CreateSchema(ctx, bunDB); err != nil {
			bunDB.Close()
			return nil, err
		}
		db := database.New(bunDB)
		log.LogDatabase("CREATE SCHEMA", "establishments, queues, tickets", fmt.Sprintf("SQLite store ready at %s", cfg.SQLitePath))
		return &storeHandle{Store: db, health: db.Ping, close: bunDB.Close}, nil

	default:
		bunDB, err := database.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		bunDB.SetMaxOpenConns(cfg.MaxOpenConns)
		bunDB.SetMaxIdleConns(cfg.MaxIdleConns)
		bunDB.SetConnMaxLifetime(cfg.MaxLifetime)
		db := database.New(bunDB)

		maxRetries := 5
		for i := 0; i < maxRetries; i++ {
			log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
			if err = db.Ping(ctx); err == nil {
				break
			}
			log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
			if i < maxRetries-1 {
				time.Sleep(2 * time.Second)
			}
		}
		if err != nil {
			bunDB.Close()
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", maxRetries, err)
		}
		log.Info("DATABASE", "PostgreSQL connection successful")

		if cfg.AutoMigrate {
			runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
				MigrationsDir: cfg.MigrationsDir,
				AutoMigrate:   cfg.AutoMigrate,
			}, log)
			if err := runner.RunMigrations(); err != nil {
				bunDB.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return &storeHandle{Store: db, health: db.Ping, close: bunDB.Close}, nil
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}

func buildVerifier(ctx context.Context, cfg config.AuthConfig, issuer *auth.TokenIssuer, log *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer == "" {
		return issuer
	}
	oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Warn("AUTH", fmt.Sprintf("OIDC issuer %s unavailable, accepting local tokens only: %v", cfg.OIDCIssuer, err))
		return issuer
	}
	log.Info("AUTH", fmt.Sprintf("Accepting local tokens and OIDC tokens from %s", cfg.OIDCIssuer))
	return auth.Chain{issuer, oidcVerifier}
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Dir)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	log.Info("APP", "Starting fast-queue initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	for _, w := range cfg.Warnings() {
		log.Warn("CONFIG", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, cfg.Telemetry, log)

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer store.close()

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = connectRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("REDIS", err.Error())
		}
		defer redisClient.Close()
	}

	var locker queue.Locker = queue.NewKeyedLocker()
	if cfg.Queue.LockBackend == "redis" {
		locker = queueredis.NewRedis(redisClient, cfg.Queue.LockTTL, cfg.Queue.LockRetry, log)
		log.Info("QUEUE", "Per-queue locks held in redis")
	}

	var events queue.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, producer.AllTopics(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		events = producer
	}

	registry := realtime.NewRegistry()
	var relay *realtime.RedisRelay
	broadcaster := realtime.NewBroadcaster(registry, nil, nil, log)
	if cfg.Realtime.Relay == "redis" {
		relay = realtime.NewRedisRelay(redisClient, log)
		broadcaster.Relay = relay
	}

	queueService := queue.NewService(store, locker, broadcaster, events, log)
	broadcaster.Source = queueService

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accountService := account.NewService(store, tokens, log)

	wsOpts := realtime.DefaultWSOptions()
	wsOpts.SendBuffer = cfg.Realtime.SendBuffer
	wsOpts.WriteTimeout = cfg.Realtime.WriteTimeout
	wsOpts.PingInterval = cfg.Realtime.PingInterval

	log.Info("HTTP", "Setting up router and middleware")
	router := httpserver.NewRouter(httpserver.Options{
		Logger:      log,
		Verifier:    buildVerifier(ctx, cfg.Auth, tokens, log),
		Queues:      queue_api.NewHandler(queueService, broadcaster, qr.NewGenerator(cfg.Server.TicketURLBase), wsOpts, log),
		Accounts:    account_api.NewHandler(accountService, log),
		Stats:       analytics_api.NewHandler(analytics.NewService(store), queueService, log),
		Health:      store.health,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("fast-queue running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx, broadcaster.Deliver)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		registry.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("APP", fmt.Sprintf("Telemetry shutdown: %v", err))
		}
		return nil
	})

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		log.Error("APP", err.Error())
		os.Exit(1)
	}
	log.Info("HTTP", "fast-queue shutdown complete")
}
