package payments_http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billing/internal/app/access"
	"billing/internal/app/payments"
	"billing/internal/domain"
)

type PaymentServiceMock struct {
	mock.Mock
}

func (m *PaymentServiceMock) InitiatePayment(ctx context.Context, req payments.CreatePaymentRequest) (*payments.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*payments.CreatePaymentResponse)
	return resp, args.Error(1)
}

func (m *PaymentServiceMock) HandleWebhook(ctx context.Context, req payments.WebhookRequest) (*domain.Payment, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *PaymentServiceMock) VerifyPayment(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *PaymentServiceMock) VerifyStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Int(0), args.Error(1)
}

func (m *PaymentServiceMock) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *PaymentServiceMock) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	p, _ := args.Get(0).(*domain.Payment)
	return p, args.Error(1)
}

func (m *PaymentServiceMock) ListPayerPayments(ctx context.Context, payerID string) ([]domain.Payment, error) {
	args := m.Called(ctx, payerID)
	list, _ := args.Get(0).([]domain.Payment)
	return list, args.Error(1)
}

func (m *PaymentServiceMock) CreateAccount(ctx context.Context, req payments.CreateAccountRequest) (*domain.Account, error) {
	args := m.Called(ctx, req)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func (m *PaymentServiceMock) GetAccount(ctx context.Context, payerID string) (*domain.Account, error) {
	args := m.Called(ctx, payerID)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func (m *PaymentServiceMock) LinkBeneficiary(ctx context.Context, payerID string, req payments.BeneficiaryRequest) (*domain.Account, error) {
	args := m.Called(ctx, payerID, req)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func (m *PaymentServiceMock) RepairAccount(ctx context.Context, payerID string) (*domain.Account, error) {
	args := m.Called(ctx, payerID)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func TestStatusFor(t *testing.T) {
	var tests = []struct {
		err    error
		status int
	}{
		{domain.NewValidationError(errors.New("bad")), http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", domain.ErrPaymentNotFound), http.StatusNotFound},
		{domain.ErrForbidden, http.StatusForbidden},
		{&access.DeniedError{Decision: &access.Decision{Reason: access.ReasonOverdue}}, http.StatusPaymentRequired},
		{domain.ErrUnsupportedProvider, http.StatusUnprocessableEntity},
		{fmt.Errorf("initiate: %w", domain.ErrProviderRejected), http.StatusUnprocessableEntity},
		{domain.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{domain.ErrDuplicateTransaction, http.StatusConflict},
		{domain.ErrAccountAlreadyExists, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestInternalErrorsAreMasked(t *testing.T) {
	svc := new(PaymentServiceMock)
	svc.On("GetPayment", mock.Anything, "p-1").Return(nil, errors.New("pq: connection refused to 10.0.0.3"))

	r := NewRouter(Options{}, svc, nil, zap.NewNop())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/p-1", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.3")
	svc.AssertExpectations(t)
}

func TestVerifyPaymentHandler(t *testing.T) {
	svc := new(PaymentServiceMock)
	svc.On("VerifyPayment", mock.Anything, "SBX-MTN-1").
		Return(nil, fmt.Errorf("verify SBX-MTN-1: %w", domain.ErrGatewayUnavailable)).Once()
	svc.On("VerifyPayment", mock.Anything, "SBX-MTN-1").
		Return(&domain.Payment{TransactionID: "SBX-MTN-1", Status: domain.PaymentStatusCompleted}, nil).Once()

	r := NewRouter(Options{}, svc, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/verify/SBX-MTN-1", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	pending := decode[pendingResponse](t, rec)
	require.Equal(t, domain.PaymentStatusPending, pending.Status)
	require.Equal(t, "SBX-MTN-1", pending.TransactionID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/verify/SBX-MTN-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.PaymentStatusCompleted, decode[domain.Payment](t, rec).Status)

	svc.AssertExpectations(t)
}

func TestWebhookWithoutSecretSkipsSignature(t *testing.T) {
	svc := new(PaymentServiceMock)
	svc.On("HandleWebhook", mock.Anything, mock.MatchedBy(func(req payments.WebhookRequest) bool {
		return req.TransactionID == "T-1" && req.Status == "failed"
	})).Return(&domain.Payment{TransactionID: "T-1", Status: domain.PaymentStatusFailed}, nil)
	svc.On("HandleWebhook", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("settle: %w", domain.ErrGatewayUnavailable))

	h := NewWebhookHandler(svc, "", zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/mobile-money",
		strings.NewReader(`{"transactionId":"T-1","status":"failed"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/mobile-money",
		strings.NewReader(`{"transactionId":"T-2","status":"failed"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
