package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported event brokers
const (
	BrokerMemory   = "memory"
	BrokerRabbitMQ = "rabbitmq"
	BrokerPubSub   = "pubsub"
	BrokerKafka    = "kafka"
)

// Supported email providers
const (
	EmailProviderLog = "log"
	EmailProviderSES = "ses"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Events   EventsConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	MigrationsTable   string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	AllowedOrigins []string
	AuthRateLimit  int // requests per minute per IP on public auth routes
	NodeID         int64
}

type AuthConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Issuer         string
	HasherMemory   uint32
	HasherTime     uint32
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	ProfileCache    bool
	ProfileCacheTTL time.Duration
}

type EventsConfig struct {
	Broker          string
	PublishTimeout  time.Duration
	NotifierEnabled bool
	RabbitMQ        RabbitMQConfig
	PubSub          PubSubConfig
	Kafka           KafkaConfig
}

type RabbitMQConfig struct {
	URL           string
	QueuePrefix   string
	PrefetchCount int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type EmailConfig struct {
	Provider        string
	AWSRegion       string
	FromAddress     string
	VerificationURL string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gatekeeper"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			MigrationsTable:   getEnv("DB_MIGRATIONS_TABLE", "goose_db_version"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			NodeID:         int64(getEnvAsInt("NODE_ID", 1)),
		},
		Auth: AuthConfig{
			PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
			PublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", ""),
			Issuer:         getEnv("JWT_ISSUER", "gatekeeper"),
			HasherMemory:   uint32(getEnvAsInt("ARGON2_MEMORY_KIB", 64*1024)),
			HasherTime:     uint32(getEnvAsInt("ARGON2_ITERATIONS", 3)),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			ProfileCache:    getEnvAsBool("PROFILE_CACHE_ENABLED", true),
			ProfileCacheTTL: getEnvAsDuration("PROFILE_CACHE_TTL", 24*time.Hour),
		},
		Events: EventsConfig{
			Broker:          strings.ToLower(getEnv("EVENT_BROKER", BrokerMemory)),
			PublishTimeout:  getEnvAsDuration("EVENT_PUBLISH_TIMEOUT", 5*time.Second),
			NotifierEnabled: getEnvAsBool("NOTIFIER_ENABLED", true),
			RabbitMQ: RabbitMQConfig{
				URL:           getEnv("RABBITMQ_URL", ""),
				QueuePrefix:   getEnv("RABBITMQ_QUEUE_PREFIX", "gatekeeper"),
				PrefetchCount: getEnvAsInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "gatekeeper"),
			},
			Kafka: KafkaConfig{
				Brokers: getEnvAsList("KAFKA_BROKERS", nil),
				GroupID: getEnv("KAFKA_GROUP_ID", "gatekeeper"),
			},
		},
		Email: EmailConfig{
			Provider:        strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderLog)),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			FromAddress:     getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			VerificationURL: getEnv("EMAIL_VERIFICATION_URL", "http://localhost:3000/verify-email"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}

	if c.IsProduction() && (c.Auth.PrivateKeyPath == "" || c.Auth.PublicKeyPath == "") {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH are required in production")
	}

	if c.Server.NodeID < 0 || c.Server.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023 (got %d)", c.Server.NodeID)
	}

	switch c.Events.Broker {
	case BrokerMemory:
	case BrokerRabbitMQ:
		if c.Events.RabbitMQ.URL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when EVENT_BROKER=rabbitmq")
		}
	case BrokerPubSub:
		if c.Events.PubSub.ProjectID == "" {
			return fmt.Errorf("PUBSUB_PROJECT_ID is required when EVENT_BROKER=pubsub")
		}
	case BrokerKafka:
		if len(c.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENT_BROKER=kafka")
		}
	default:
		return fmt.Errorf("unsupported EVENT_BROKER %q", c.Events.Broker)
	}

	switch c.Email.Provider {
	case EmailProviderLog, EmailProviderSES:
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", c.Email.Provider)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
