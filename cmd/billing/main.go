package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"billing/internal/app/access"
	"billing/internal/app/payments"
	"billing/internal/config"
	"billing/internal/domain"
	"billing/internal/gateway"
	payments_http "billing/internal/handler/http/payments"
	kafka_handler "billing/internal/handler/kafka"
	"billing/internal/infrastructure/database"
	kafka_infra "billing/internal/infrastructure/kafka"
	"billing/internal/outbox"
	"billing/internal/poller"
	"billing/internal/repository/accounts_repo"
	"billing/internal/repository/outbox_repo"
	"billing/internal/repository/payments_repo"
	"billing/internal/repository/students_repo"
)

type storage struct {
	db       *sql.DB
	querier  domain.Querier
	tx       database.TxRunner
	accounts accounts_repo.AccountRepository
	payments payments_repo.PaymentRepository
	students students_repo.StudentRepository
	outbox   outbox_repo.OutboxRepository
}

func connectWithRetry(cfg database.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	const maxRetries = 10
	const retryDelay = 5 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := database.NewPostgresDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			return db, nil
		}
		lastErr = err
		logger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("database unavailable after %d attempts: %w", maxRetries, lastErr)
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database migrations applied", zap.String("path", cfg.MigrationsPath))
	return nil
}

func openStorage(cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		students, err := loadSeedStudents(cfg.MemorySeedFile)
		if err != nil {
			return nil, err
		}
		logger.Warn("Using in-memory storage, data is lost on restart", zap.Int("seeded_students", len(students)))
		return &storage{
			tx:       database.NewMemoryTxRunner(),
			accounts: accounts_repo.NewMemoryRepository(),
			payments: payments_repo.NewMemoryRepository(),
			students: students_repo.NewMemoryRepository(students...),
			outbox:   outbox_repo.NewMemoryRepository(),
		}, nil
	}

	db, err := connectWithRetry(cfg.DBConfig, logger)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(cfg, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &storage{
		db:       db,
		querier:  db,
		tx:       database.NewTxRunner(db, logger.With(zap.String("component", "TxRunner"))),
		accounts: accounts_repo.NewAccountRepository(db),
		payments: payments_repo.NewPaymentRepository(db),
		students: students_repo.NewStudentRepository(db),
		outbox:   outbox_repo.NewOutboxRepository(db),
	}, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if !cfg.IsProduction() {
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	return zapConfig.Build()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Billing service starting",
		zap.String("env", cfg.AppEnv),
		zap.String("storage", cfg.StorageDriver),
		zap.Bool("sandbox", cfg.Gateway.Sandbox),
	)

	store, err := openStorage(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open storage", zap.Error(err))
	}
	if store.db != nil {
		defer func() {
			if err := store.db.Close(); err != nil {
				appLogger.Error("Error closing database connection", zap.Error(err))
			}
		}()
	}

	paymentGateway := gateway.NewAdapter(cfg.Gateway, appLogger.With(zap.String("component", "PaymentGateway")))
	paymentService := payments.NewPaymentService(
		store.querier,
		store.tx,
		store.accounts,
		store.payments,
		store.students,
		store.outbox,
		paymentGateway,
		cfg.KafkaPaymentEventsTopic,
		appLogger.With(zap.String("component", "PaymentService")),
	)
	accessGate := access.NewGate(
		store.querier,
		store.accounts,
		store.payments,
		cfg.AccessFreshnessWindow,
		appLogger.With(zap.String("component", "AccessGate")),
	)

	router := payments_http.NewRouter(payments_http.Options{
		WebhookSecret:  cfg.WebhookSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, paymentService, accessGate, appLogger.With(zap.String("component", "HTTPHandler")))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()
	var workers sync.WaitGroup

	var kafkaProducer kafka_infra.Producer
	if cfg.StorageDriver == config.StoragePostgres {
		ensureCtx, cancel := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(ensureCtx, cfg.GetKafkaBrokers(), []string{
			cfg.KafkaPaymentEventsTopic,
			cfg.KafkaVerificationTopic,
		}, appLogger)
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer = kafka_infra.NewProducer(cfg.GetKafkaBrokers(), appLogger.With(zap.String("component", "KafkaProducer")))

		outboxProcessor := outbox.NewProcessor(
			store.tx,
			store.outbox,
			kafkaProducer,
			cfg.KafkaPaymentEventsTopic,
			cfg.OutboxPollInterval,
			cfg.OutboxPollTimeout,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			outboxProcessor.Start(ctxMain)
		}()

		verificationConsumer := kafka_infra.NewConsumer(
			cfg.GetKafkaBrokers(),
			cfg.KafkaConsumerGroup,
			cfg.KafkaVerificationTopic,
			appLogger.With(zap.String("component", "VerificationConsumer")),
		)
		verificationHandler := kafka_handler.VerificationRequestedHandler(
			paymentService,
			appLogger.With(zap.String("component", "VerificationHandler")),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := verificationConsumer.Start(ctxMain, verificationHandler); err != nil {
				appLogger.Error("Verification consumer stopped with error", zap.Error(err))
			}
		}()
	} else {
		appLogger.Info("Outbox processor and Kafka consumer disabled for in-memory storage")
	}

	pendingPoller := poller.New(
		paymentService,
		cfg.PendingPollInterval,
		cfg.PendingMinAge,
		cfg.PendingBatchSize,
		appLogger.With(zap.String("component", "PendingPoller")),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		pendingPoller.Run(ctxMain)
	}()

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	appLogger.Info("Shutting down billing service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	cancelMain()
	stopped := make(chan struct{})
	go func() {
		workers.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline")
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		}
	}
	appLogger.Info("Billing service stopped")
}
