package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"billing/internal/domain"
)

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
}

func NewPostgresDB(cfg DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// TxRunner runs fn as one unit of work. fn must use the querier it is given.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(q domain.Querier) error) error
}

type postgresTxRunner struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTxRunner(db *sql.DB, logger *zap.Logger) TxRunner {
	return &postgresTxRunner{db: db, logger: logger}
}

func (r *postgresTxRunner) RunInTx(ctx context.Context, fn func(q domain.Querier) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered panic inside transaction, rolling back", zap.Any("panic", p))
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type memoryTxRunner struct{}

// NewMemoryTxRunner returns a runner for the in-memory stores. There is no
// rollback: each store write is applied as soon as it is made.
func NewMemoryTxRunner() TxRunner {
	return memoryTxRunner{}
}

func (memoryTxRunner) RunInTx(_ context.Context, fn func(q domain.Querier) error) error {
	return fn(nil)
}
