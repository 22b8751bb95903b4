package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/gateway"
	"billing/internal/infrastructure/database"
	"billing/internal/repository/accounts_repo"
	"billing/internal/repository/outbox_repo"
	"billing/internal/repository/payments_repo"
	"billing/internal/repository/students_repo"
	"billing/internal/util"
	"billing/internal/validation"
)

type PaymentService interface {
	InitiatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	HandleWebhook(ctx context.Context, req WebhookRequest) (*domain.Payment, error)
	VerifyPayment(ctx context.Context, transactionID string) (*domain.Payment, error)
	VerifyStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error)

	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListPayerPayments(ctx context.Context, payerID string) ([]domain.Payment, error)

	CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error)
	GetAccount(ctx context.Context, payerID string) (*domain.Account, error)
	LinkBeneficiary(ctx context.Context, payerID string, req BeneficiaryRequest) (*domain.Account, error)
	RepairAccount(ctx context.Context, payerID string) (*domain.Account, error)
}

type paymentService struct {
	db          domain.Querier
	tx          database.TxRunner
	accountRepo accounts_repo.AccountRepository
	paymentRepo payments_repo.PaymentRepository
	studentRepo students_repo.StudentRepository
	outboxRepo  outbox_repo.OutboxRepository
	gateway     gateway.Gateway
	eventsTopic string
	now         func() time.Time
	logger      *zap.Logger
}

// NewPaymentService wires the settlement workflow. db serves reads outside a
// transaction and may be nil for the in-memory stores.
func NewPaymentService(
	db domain.Querier,
	tx database.TxRunner,
	accountRepo accounts_repo.AccountRepository,
	paymentRepo payments_repo.PaymentRepository,
	studentRepo students_repo.StudentRepository,
	outboxRepo outbox_repo.OutboxRepository,
	gw gateway.Gateway,
	eventsTopic string,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		db:          db,
		tx:          tx,
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
		studentRepo: studentRepo,
		outboxRepo:  outboxRepo,
		gateway:     gw,
		eventsTopic: eventsTopic,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, validation.FieldError("amount", "amount must be greater than zero")
	}

	account, err := s.accountRepo.GetAccountTx(ctx, s.db, req.PayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payer %s: %w", req.PayerID, err)
	}
	if !account.HasBeneficiary(req.StudentID) {
		s.logger.Warn("Payment refused, payer is not linked to student",
			zap.String("payer_id", req.PayerID),
			zap.String("student_id", req.StudentID),
		)
		return nil, fmt.Errorf("payer %s has no link to student %s: %w", req.PayerID, req.StudentID, domain.ErrForbidden)
	}
	student, err := s.studentRepo.GetStudentTx(ctx, s.db, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", req.StudentID, err)
	}

	now := s.now()
	payment := &domain.Payment{
		ID:           util.GenerateUUID(),
		PayerID:      req.PayerID,
		StudentID:    req.StudentID,
		SchoolID:     student.SchoolID,
		Amount:       req.Amount,
		AmountPaid:   decimal.Zero,
		Method:       req.PaymentMethod,
		Trimester:    req.Trimester,
		AcademicYear: req.AcademicYear,
		Description:  req.Description,
		Notes:        req.Notes,
		DueDate:      now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.DueDate != nil {
		payment.DueDate = req.DueDate.UTC()
	}
	if payment.AcademicYear == "" {
		payment.AcademicYear = domain.AcademicYearFor(now)
	}
	if payment.Description == "" {
		payment.Description = fmt.Sprintf("Bulletin access, %s trimester %s", payment.Trimester, payment.AcademicYear)
	}

	if payment.Method.IsDirect() {
		return s.recordDirectPayment(ctx, payment)
	}
	return s.initiateMobileMoney(ctx, payment, req)
}

func (s *paymentService) recordDirectPayment(ctx context.Context, payment *domain.Payment) (*CreatePaymentResponse, error) {
	prefix := "CASH"
	if payment.Method == domain.PaymentMethodBankTransfer {
		prefix = "BANK"
	}
	paidDate := payment.CreatedAt
	payment.TransactionID = util.GenerateTransactionID(prefix)
	payment.Status = domain.PaymentStatusCompleted
	payment.AmountPaid = payment.Amount
	payment.PaidDate = &paidDate

	err := s.tx.RunInTx(ctx, func(q domain.Querier) error {
		if err := s.paymentRepo.CreateTx(ctx, q, payment); err != nil {
			return err
		}
		if err := s.accountRepo.CreditTx(ctx, q, payment.PayerID, payment.AmountPaid, paidDate); err != nil {
			return err
		}
		return s.enqueueSettlement(ctx, q, payment)
	})
	if err != nil {
		s.logger.Error("Failed to record direct payment",
			zap.String("payer_id", payment.PayerID),
			zap.String("transaction_id", payment.TransactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record %s payment for payer %s: %w", payment.Method, payment.PayerID, err)
	}

	s.logger.Info("Direct payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("payer_id", payment.PayerID),
		zap.String("amount", payment.Amount.String()),
	)
	return &CreatePaymentResponse{Payment: payment}, nil
}

func (s *paymentService) initiateMobileMoney(ctx context.Context, payment *domain.Payment, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	provider, err := gateway.ParseProvider(req.MobileMoneyProvider)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
		Amount:      payment.Amount,
		PhoneNumber: req.PhoneNumber,
		Provider:    provider,
		Description: payment.Description,
		Reference:   payment.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate payment for payer %s: %w", payment.PayerID, err)
	}

	payment.TransactionID = res.TransactionID
	payment.Provider = string(provider)
	payment.PhoneNumber = req.PhoneNumber
	payment.Status = domain.PaymentStatusPending

	if err := s.paymentRepo.CreateTx(ctx, s.db, payment); err != nil {
		s.logger.Error("Provider accepted the payment but it could not be stored",
			zap.String("transaction_id", payment.TransactionID),
			zap.String("payer_id", payment.PayerID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to store payment %s: %w", payment.TransactionID, err)
	}
	s.logger.Info("Mobile money payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("payer_id", payment.PayerID),
		zap.String("student_id", payment.StudentID),
		zap.String("provider", payment.Provider),
	)

	// Some providers settle synchronously.
	if res.Status != domain.PaymentStatusPending {
		updated, err := s.applyProviderStatus(ctx, payment, res.Status, payment.Amount)
		if err != nil {
			return nil, err
		}
		payment = updated
	}

	return &CreatePaymentResponse{
		Payment:    payment,
		PaymentURL: res.PaymentURL,
		USSDCode:   res.USSDCode,
	}, nil
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByIDTx(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return payment, nil
}

func (s *paymentService) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByTransactionIDTx(ctx, s.db, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", transactionID, err)
	}
	return payment, nil
}

func (s *paymentService) ListPayerPayments(ctx context.Context, payerID string) ([]domain.Payment, error) {
	if _, err := s.accountRepo.GetAccountTx(ctx, s.db, payerID); err != nil {
		return nil, fmt.Errorf("failed to load payer %s: %w", payerID, err)
	}
	payments, err := s.paymentRepo.ListByPayerTx(ctx, s.db, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for payer %s: %w", payerID, err)
	}
	return payments, nil
}

func (s *paymentService) enqueueSettlement(ctx context.Context, q domain.Querier, payment *domain.Payment) error {
	messageType := domain.MessageTypePaymentCompleted
	if payment.Status != domain.PaymentStatusCompleted {
		messageType = domain.MessageTypePaymentFailed
	}
	now := s.now()
	payload, err := json.Marshal(domain.PaymentSettledEvent{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		PayerID:       payment.PayerID,
		StudentID:     payment.StudentID,
		SchoolID:      payment.SchoolID,
		Amount:        payment.Amount,
		AmountPaid:    payment.AmountPaid,
		Method:        payment.Method,
		Trimester:     payment.Trimester,
		AcademicYear:  payment.AcademicYear,
		Status:        payment.Status,
		Timestamp:     now,
	})
	if err != nil {
		return fmt.Errorf("failed to encode settlement event for %s: %w", payment.TransactionID, err)
	}

	msg := &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		AggregateID: payment.ID,
		MessageType: messageType,
		Topic:       s.eventsTopic,
		Key:         payment.TransactionID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   now,
	}
	if err := s.outboxRepo.CreateMessageTx(ctx, q, msg); err != nil {
		return fmt.Errorf("failed to enqueue settlement event for %s: %w", payment.TransactionID, err)
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrGatewayUnavailable)
}
