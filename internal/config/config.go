package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"billing/internal/gateway"
	"billing/internal/infrastructure/database"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	AppEnv        string
	HTTPPort      int
	StorageDriver string
	// MemorySeedFile lists students to preload when StorageDriver is memory.
	MemorySeedFile string

	DBConfig       database.DBConfig
	MigrationsPath string

	KafkaBrokerURL          string
	KafkaPaymentEventsTopic string
	KafkaVerificationTopic  string
	KafkaConsumerGroup      string

	OutboxPollInterval time.Duration
	OutboxPollTimeout  time.Duration

	Gateway gateway.Config

	AccessFreshnessWindow time.Duration

	PendingPollInterval time.Duration
	PendingMinAge       time.Duration
	PendingBatchSize    int

	WebhookSecret      string
	CORSAllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_PORT", 8082)
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)

	v.SetDefault("PAYMENTS_DB_HOST", "localhost")
	v.SetDefault("PAYMENTS_DB_PORT", 5432)
	v.SetDefault("PAYMENTS_DB_USER", "user")
	v.SetDefault("PAYMENTS_DB_PASSWORD", "password")
	v.SetDefault("PAYMENTS_DB_NAME", "billing_db")
	v.SetDefault("PAYMENTS_DB_SSLMODE", "disable")
	v.SetDefault("MIGRATIONS_PATH", "file:///app/migrations")

	v.SetDefault("KAFKA_BROKER_URL", "localhost:9092")
	v.SetDefault("KAFKA_PAYMENT_EVENTS_TOPIC", "payment_settlements")
	v.SetDefault("KAFKA_VERIFICATION_TOPIC", "payment_verification_requests")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "billing-service-group")

	v.SetDefault("OUTBOX_POLL_INTERVAL", time.Second)
	v.SetDefault("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)

	v.SetDefault("GATEWAY_TIMEOUT", 15*time.Second)
	v.SetDefault("PAYMENT_CURRENCY", "XOF")
	v.SetDefault("MTN_TARGET_ENVIRONMENT", "sandbox")

	v.SetDefault("ACCESS_FRESHNESS_WINDOW", 90*24*time.Hour)

	v.SetDefault("PENDING_POLL_INTERVAL", time.Minute)
	v.SetDefault("PENDING_MIN_AGE", 5*time.Minute)
	v.SetDefault("PENDING_BATCH_SIZE", 50)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
}

// LoadConfig reads the environment, after loading the optional .env file
// named by BILLING_ENV_FILE. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("BILLING_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		AppEnv:         strings.ToLower(v.GetString("APP_ENV")),
		HTTPPort:       v.GetInt("HTTP_PORT"),
		StorageDriver:  strings.ToLower(v.GetString("STORAGE_DRIVER")),
		MemorySeedFile: v.GetString("MEMORY_SEED_FILE"),
		DBConfig: database.DBConfig{
			Host:     v.GetString("PAYMENTS_DB_HOST"),
			Port:     v.GetInt("PAYMENTS_DB_PORT"),
			User:     v.GetString("PAYMENTS_DB_USER"),
			Password: v.GetString("PAYMENTS_DB_PASSWORD"),
			DBName:   v.GetString("PAYMENTS_DB_NAME"),
			SSLMode:  v.GetString("PAYMENTS_DB_SSLMODE"),
		},
		MigrationsPath: v.GetString("MIGRATIONS_PATH"),

		KafkaBrokerURL:          v.GetString("KAFKA_BROKER_URL"),
		KafkaPaymentEventsTopic: v.GetString("KAFKA_PAYMENT_EVENTS_TOPIC"),
		KafkaVerificationTopic:  v.GetString("KAFKA_VERIFICATION_TOPIC"),
		KafkaConsumerGroup:      v.GetString("KAFKA_CONSUMER_GROUP"),

		OutboxPollInterval: v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxPollTimeout:  v.GetDuration("OUTBOX_POLL_TIMEOUT"),

		AccessFreshnessWindow: v.GetDuration("ACCESS_FRESHNESS_WINDOW"),

		PendingPollInterval: v.GetDuration("PENDING_POLL_INTERVAL"),
		PendingMinAge:       v.GetDuration("PENDING_MIN_AGE"),
		PendingBatchSize:    v.GetInt("PENDING_BATCH_SIZE"),

		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	sandbox := cfg.AppEnv != "production"
	if v.IsSet("PAYMENTS_SANDBOX") {
		sandbox = v.GetBool("PAYMENTS_SANDBOX")
	}
	cfg.Gateway = gateway.Config{
		Sandbox:  sandbox,
		Timeout:  v.GetDuration("GATEWAY_TIMEOUT"),
		Currency: v.GetString("PAYMENT_CURRENCY"),
		Aggregator: gateway.AggregatorConfig{
			BaseURL:   v.GetString("AGGREGATOR_BASE_URL"),
			PublicKey: v.GetString("AGGREGATOR_PUBLIC_KEY"),
			SecretKey: v.GetString("AGGREGATOR_SECRET_KEY"),
		},
		MTN: gateway.MTNConfig{
			BaseURL:           v.GetString("MTN_BASE_URL"),
			SubscriptionKey:   v.GetString("MTN_SUBSCRIPTION_KEY"),
			APIUser:           v.GetString("MTN_API_USER"),
			APIKey:            v.GetString("MTN_API_KEY"),
			TargetEnvironment: v.GetString("MTN_TARGET_ENVIRONMENT"),
		},
		Moov: gateway.USSDConfig{
			BaseURL:    v.GetString("MOOV_BASE_URL"),
			APIKey:     v.GetString("MOOV_API_KEY"),
			MerchantID: v.GetString("MOOV_MERCHANT_ID"),
		},
		Celtiis: gateway.USSDConfig{
			BaseURL:    v.GetString("CELTIIS_BASE_URL"),
			APIKey:     v.GetString("CELTIIS_API_KEY"),
			MerchantID: v.GetString("CELTIIS_MERCHANT_ID"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: want %s or %s", c.StorageDriver, StoragePostgres, StorageMemory)
	}
	if c.HTTPPort <= 0 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	if c.AccessFreshnessWindow <= 0 {
		return fmt.Errorf("invalid ACCESS_FRESHNESS_WINDOW %s", c.AccessFreshnessWindow)
	}
	if c.OutboxPollInterval <= 0 || c.PendingPollInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) GetDBMigrationConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBConfig.User, c.DBConfig.Password),
		Host:     fmt.Sprintf("%s:%d", c.DBConfig.Host, c.DBConfig.Port),
		Path:     c.DBConfig.DBName,
		RawQuery: "sslmode=" + c.DBConfig.SSLMode,
	}
	return u.String()
}

func (c *Config) GetKafkaBrokers() []string {
	return splitList(c.KafkaBrokerURL)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
