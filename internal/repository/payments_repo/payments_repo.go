package payments_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

const paymentColumns = `id, transaction_id, payer_id, student_id, school_id, amount, amount_paid, method, provider,
		phone_number, trimester, academic_year, status, description, notes, due_date, paid_date, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var paidDate sql.NullTime
	err := row.Scan(
		&payment.ID,
		&payment.TransactionID,
		&payment.PayerID,
		&payment.StudentID,
		&payment.SchoolID,
		&payment.Amount,
		&payment.AmountPaid,
		&payment.Method,
		&payment.Provider,
		&payment.PhoneNumber,
		&payment.Trimester,
		&payment.AcademicYear,
		&payment.Status,
		&payment.Description,
		&payment.Notes,
		&payment.DueDate,
		&paidDate,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paidDate.Valid {
		payment.PaidDate = &paidDate.Time
	}
	return payment, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *paymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.TransactionID,
		payment.PayerID,
		payment.StudentID,
		payment.SchoolID,
		payment.Amount,
		payment.AmountPaid,
		payment.Method,
		payment.Provider,
		payment.PhoneNumber,
		payment.Trimester,
		payment.AcademicYear,
		payment.Status,
		payment.Description,
		payment.Notes,
		payment.DueDate,
		nullTime(payment.PaidDate),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("transaction %s: %w", payment.TransactionID, domain.ErrDuplicateTransaction)
		}
		return fmt.Errorf("failed to create payment %s: %w", payment.TransactionID, err)
	}
	return nil
}

func (r *paymentRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment id %s: %w", id, domain.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by id %s: %w", id, err)
	}
	return payment, nil
}

func (r *paymentRepository) GetByTransactionIDTx(ctx context.Context, querier domain.Querier, transactionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, domain.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to get payment by transaction id %s: %w", transactionID, err)
	}
	return payment, nil
}

func (r *paymentRepository) AppendNoteTx(ctx context.Context, querier domain.Querier, transactionID, note string) error {
	query := `
		UPDATE payments
		SET notes = CASE WHEN notes = '' THEN $1 ELSE notes || E'\n' || $1 END, updated_at = $2
		WHERE transaction_id = $3
	`
	res, err := querier.ExecContext(ctx, query, note, time.Now().UTC(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to annotate transaction %s: %w", transactionID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment note: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrPaymentNotFound)
	}
	return nil
}

func (r *paymentRepository) TransitionTx(
	ctx context.Context,
	querier domain.Querier,
	transactionID string,
	from, to domain.PaymentStatus,
	amountPaid decimal.Decimal,
	paidDate *time.Time,
) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, amount_paid = $2, paid_date = $3, updated_at = $4
		WHERE transaction_id = $5 AND status = $6
	`
	res, err := querier.ExecContext(ctx, query,
		to,
		amountPaid,
		nullTime(paidDate),
		time.Now().UTC(),
		transactionID,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to move transaction %s from %s to %s: %w", transactionID, from, to, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for transaction %s: %w", transactionID, err)
	}
	return rowsAffected == 1, nil
}

func (r *paymentRepository) LatestCompletedTx(ctx context.Context, querier domain.Querier, payerID, studentID string) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE payer_id = $1 AND student_id = $2 AND status = $3 AND paid_date IS NOT NULL
		ORDER BY paid_date DESC
		LIMIT 1
	`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, payerID, studentID, domain.PaymentStatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("completed payment for payer %s and student %s: %w", payerID, studentID, domain.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to get latest completed payment for payer %s: %w", payerID, err)
	}
	return payment, nil
}

func (r *paymentRepository) ListByPayerTx(ctx context.Context, querier domain.Querier, payerID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, querier, query, payerID)
}

func (r *paymentRepository) ListStalePendingTx(ctx context.Context, querier domain.Querier, olderThan time.Time, limit int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1 AND method = $2 AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`
	return r.list(ctx, querier, query, domain.PaymentStatusPending, domain.PaymentMethodMobileMoney, olderThan, limit)
}

func (r *paymentRepository) list(ctx context.Context, querier domain.Querier, query string, args ...any) ([]domain.Payment, error) {
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) SumCompletedTx(ctx context.Context, querier domain.Querier, payerID string) (domain.Aggregates, error) {
	query := `
		SELECT COALESCE(SUM(amount_paid), 0), MAX(paid_date), COUNT(*)
		FROM payments
		WHERE payer_id = $1 AND status = $2
	`
	var agg domain.Aggregates
	var lastPaid sql.NullTime
	err := querier.QueryRowContext(ctx, query, payerID, domain.PaymentStatusCompleted).Scan(
		&agg.AmountPaid,
		&lastPaid,
		&agg.Completed,
	)
	if err != nil {
		return domain.Aggregates{}, fmt.Errorf("failed to sum completed payments for payer %s: %w", payerID, err)
	}
	if lastPaid.Valid {
		agg.LastPaymentDate = &lastPaid.Time
	}
	return agg, nil
}
