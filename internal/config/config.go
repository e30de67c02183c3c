package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Realtime  RealtimeConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	TicketURLBase string
}

// StoreConfig selects the persistence backend: postgres, sqlite or memory.
type StoreConfig struct {
	Driver        string
	PostgresDSN   string
	SQLitePath    string
	AutoMigrate   bool
	MigrationsDir string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig picks how per-queue critical sections are serialized:
// "local" for a single process, "redis" across instances.
type QueueConfig struct {
	LockBackend string
	LockTTL     time.Duration
	LockRetry   time.Duration
}

type RealtimeConfig struct {
	Relay        string
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	TicketCreated string
	TicketCalled  string
	TicketDone    string
	TicketSkipped string
}

type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	OIDCIssuer string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
}

type LogConfig struct {
	Dir   string
	Level string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          normalizePort(getEnv("PORT", ":3333")),
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			IdleTimeout:   60 * time.Second,
			TicketURLBase: strings.TrimRight(getEnv("TICKET_URL_BASE", "http://localhost:3000"), "/"),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			PostgresDSN:   getEnv("POSTGRES_DSN", ""),
			SQLitePath:    getEnv("SQLITE_PATH", "file:fast-queue.db?cache=shared"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			LockBackend: strings.ToLower(getEnv("QUEUE_LOCK_BACKEND", "local")),
			LockTTL:     time.Duration(getEnvInt("QUEUE_LOCK_TTL_SECONDS", 10)) * time.Second,
			LockRetry:   time.Duration(getEnvInt("QUEUE_LOCK_RETRY_MS", 25)) * time.Millisecond,
		},
		Realtime: RealtimeConfig{
			Relay:        strings.ToLower(getEnv("REALTIME_RELAY", "none")),
			SendBuffer:   getEnvInt("WS_SEND_BUFFER", 16),
			WriteTimeout: time.Duration(getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
			PingInterval: time.Duration(getEnvInt("WS_PING_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				TicketCreated: getEnv("KAFKA_TOPIC_TICKET_CREATED", "fastqueue.ticket.created"),
				TicketCalled:  getEnv("KAFKA_TOPIC_TICKET_CALLED", "fastqueue.ticket.called"),
				TicketDone:    getEnv("KAFKA_TOPIC_TICKET_DONE", "fastqueue.ticket.done"),
				TicketSkipped: getEnv("KAFKA_TOPIC_TICKET_SKIPPED", "fastqueue.ticket.skipped"),
			},
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			TokenTTL:   time.Duration(getEnvInt("JWT_TTL_HOURS", 24*7)) * time.Hour,
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fast-queue"),
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN must be set when STORE_DRIVER=postgres")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Queue.LockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported QUEUE_LOCK_BACKEND %q", c.Queue.LockBackend)
	}
	switch c.Realtime.Relay {
	case "none", "redis":
	default:
		return fmt.Errorf("unsupported REALTIME_RELAY %q", c.Realtime.Relay)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

// Warnings lists settings that start but are only safe in a narrower
// deployment than they appear to support.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Store.Driver == "postgres" && c.Queue.LockBackend == "local" {
		warnings = append(warnings, "QUEUE_LOCK_BACKEND=local with STORE_DRIVER=postgres is only safe with a single instance; use QUEUE_LOCK_BACKEND=redis when scaling out")
	}
	return warnings
}

// NeedsRedis reports whether any configured component talks to redis.
// Per-queue locks are process local unless QUEUE_LOCK_BACKEND=redis.
func (c *Config) NeedsRedis() bool {
	return c.Queue.LockBackend == "redis" || c.Realtime.Relay == "redis"
}

func normalizePort(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
