package accounts_repo

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

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *accountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, school_id, payment_status, total_amount_due, amount_paid, last_payment_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier.ExecContext(ctx, query,
		account.ID,
		account.SchoolID,
		account.PaymentStatus,
		account.TotalAmountDue,
		account.AmountPaid,
		nullTime(account.LastPaymentDate),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("payer %s: %w", account.ID, domain.ErrAccountAlreadyExists)
		}
		return fmt.Errorf("failed to create account for payer %s: %w", account.ID, err)
	}

	for _, b := range account.Beneficiaries {
		if err := r.AddBeneficiaryTx(ctx, querier, account.ID, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *accountRepository) GetAccountTx(ctx context.Context, querier domain.Querier, payerID string) (*domain.Account, error) {
	return r.getAccount(ctx, querier, payerID, "")
}

func (r *accountRepository) GetAccountForUpdateTx(ctx context.Context, querier domain.Querier, payerID string) (*domain.Account, error) {
	return r.getAccount(ctx, querier, payerID, "FOR UPDATE")
}

func (r *accountRepository) getAccount(ctx context.Context, querier domain.Querier, payerID, lock string) (*domain.Account, error) {
	query := `
		SELECT id, school_id, payment_status, total_amount_due, amount_paid, last_payment_date, created_at, updated_at
		FROM accounts
		WHERE id = $1
	` + lock
	account := &domain.Account{}
	var lastPayment sql.NullTime
	err := querier.QueryRowContext(ctx, query, payerID).Scan(
		&account.ID,
		&account.SchoolID,
		&account.PaymentStatus,
		&account.TotalAmountDue,
		&account.AmountPaid,
		&lastPayment,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to get account for payer %s: %w", payerID, err)
	}
	if lastPayment.Valid {
		account.LastPaymentDate = &lastPayment.Time
	}

	account.Beneficiaries, err = r.listBeneficiaries(ctx, querier, payerID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *accountRepository) listBeneficiaries(ctx context.Context, querier domain.Querier, payerID string) ([]domain.Beneficiary, error) {
	query := `SELECT student_id, relationship FROM account_beneficiaries WHERE account_id = $1 ORDER BY created_at`
	rows, err := querier.QueryContext(ctx, query, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list beneficiaries for payer %s: %w", payerID, err)
	}
	defer rows.Close()

	beneficiaries := make([]domain.Beneficiary, 0)
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(&b.StudentID, &b.Relationship); err != nil {
			return nil, fmt.Errorf("failed to scan beneficiary: %w", err)
		}
		beneficiaries = append(beneficiaries, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating beneficiaries: %w", err)
	}
	return beneficiaries, nil
}

// CreditTx adds a settled amount in place so concurrent credits never overwrite each other.
// Exempted accounts keep their status.
func (r *accountRepository) CreditTx(ctx context.Context, querier domain.Querier, payerID string, amount decimal.Decimal, paidAt time.Time) error {
	query := `
		UPDATE accounts
		SET amount_paid = amount_paid + $1,
			payment_status = CASE WHEN payment_status = $2 THEN payment_status ELSE $3 END,
			last_payment_date = GREATEST(COALESCE(last_payment_date, $4), $4),
			updated_at = $5
		WHERE id = $6
	`
	res, err := querier.ExecContext(ctx, query,
		amount,
		domain.AccountStatusExempted,
		domain.AccountStatusPaid,
		paidAt,
		time.Now().UTC(),
		payerID,
	)
	if err != nil {
		return fmt.Errorf("failed to credit account for payer %s: %w", payerID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	return nil
}

func (r *accountRepository) SetAggregatesTx(ctx context.Context, querier domain.Querier, payerID string, agg domain.Aggregates, status domain.AccountPaymentStatus) error {
	query := `
		UPDATE accounts
		SET amount_paid = $1, last_payment_date = $2, payment_status = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := querier.ExecContext(ctx, query,
		agg.AmountPaid,
		nullTime(agg.LastPaymentDate),
		status,
		time.Now().UTC(),
		payerID,
	)
	if err != nil {
		return fmt.Errorf("failed to set aggregates for payer %s: %w", payerID, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
	}
	return nil
}

func (r *accountRepository) AddBeneficiaryTx(ctx context.Context, querier domain.Querier, payerID string, beneficiary domain.Beneficiary) error {
	query := `
		INSERT INTO account_beneficiaries (account_id, student_id, relationship, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, student_id) DO UPDATE SET relationship = EXCLUDED.relationship
	`
	_, err := querier.ExecContext(ctx, query, payerID, beneficiary.StudentID, beneficiary.Relationship, time.Now().UTC())
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("payer %s: %w", payerID, domain.ErrAccountNotFound)
		}
		return fmt.Errorf("failed to link student %s to payer %s: %w", beneficiary.StudentID, payerID, err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
