package payments

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billing/internal/domain"
	"billing/internal/gateway"
	"billing/internal/infrastructure/database"
	"billing/internal/repository/accounts_repo"
	"billing/internal/repository/outbox_repo"
	"billing/internal/repository/payments_repo"
	"billing/internal/repository/students_repo"
)

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResult), args.Error(1)
}

func (m *GatewayMock) Verify(ctx context.Context, provider gateway.Provider, transactionID string) (*gateway.VerifyResult, error) {
	args := m.Called(ctx, provider, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.VerifyResult), args.Error(1)
}

var errCreditFailed = errors.New("credit failed")

// flakyAccounts fails the next N credits, simulating a crash between the
// payment transition and the aggregate update on a non-transactional store.
type flakyAccounts struct {
	*accounts_repo.MemoryRepository
	failures int32
}

func (f *flakyAccounts) CreditTx(ctx context.Context, q domain.Querier, payerID string, amount decimal.Decimal, paidAt time.Time) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return errCreditFailed
	}
	return f.MemoryRepository.CreditTx(ctx, q, payerID, amount, paidAt)
}

const (
	testPayer   = "parent-1"
	testStudent = "student-1"
	testTopic   = "payment_settlements"
)

type harness struct {
	svc      *paymentService
	accounts *accounts_repo.MemoryRepository
	flaky    *flakyAccounts
	payments *payments_repo.MemoryRepository
	outbox   *outbox_repo.MemoryRepository
}

func newHarness(t *testing.T, gw gateway.Gateway) *harness {
	t.Helper()
	ctx := context.Background()

	accounts := accounts_repo.NewMemoryRepository()
	require.NoError(t, accounts.CreateAccountTx(ctx, nil, &domain.Account{
		ID:            testPayer,
		PaymentStatus: domain.AccountStatusPending,
		AmountPaid:    decimal.Zero,
		Beneficiaries: []domain.Beneficiary{{StudentID: testStudent, Relationship: domain.RelationshipMother}},
	}))
	flaky := &flakyAccounts{MemoryRepository: accounts}

	students := students_repo.NewMemoryRepository(
		domain.Student{ID: testStudent, SchoolID: "school-1", FirstName: "Afi", LastName: "Dossou"},
		domain.Student{ID: "student-2", SchoolID: "school-1", FirstName: "Koffi", LastName: "Dossou"},
	)
	payments := payments_repo.NewMemoryRepository()
	outbox := outbox_repo.NewMemoryRepository()

	svc := NewPaymentService(nil, database.NewMemoryTxRunner(), flaky, payments, students, outbox, gw, testTopic, zap.NewNop())
	return &harness{
		svc:      svc.(*paymentService),
		accounts: accounts,
		flaky:    flaky,
		payments: payments,
		outbox:   outbox,
	}
}

func sandboxGateway() gateway.Gateway {
	return gateway.NewAdapter(gateway.Config{Sandbox: true}, zap.NewNop())
}

func mobileMoneyRequest(amount int64) CreatePaymentRequest {
	return CreatePaymentRequest{
		PayerID:             testPayer,
		StudentID:           testStudent,
		Amount:              decimal.NewFromInt(amount),
		PaymentMethod:       domain.PaymentMethodMobileMoney,
		PhoneNumber:         "22997000000",
		MobileMoneyProvider: "mtn",
		Trimester:           domain.TrimesterFirst,
	}
}

func (h *harness) account(t *testing.T) *domain.Account {
	t.Helper()
	account, err := h.accounts.GetAccountTx(context.Background(), nil, testPayer)
	require.NoError(t, err)
	return account
}

func (h *harness) initiate(t *testing.T, amount int64) *domain.Payment {
	t.Helper()
	res, err := h.svc.InitiatePayment(context.Background(), mobileMoneyRequest(amount))
	require.NoError(t, err)
	return res.Payment
}
