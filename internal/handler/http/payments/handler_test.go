package payments_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"billing/internal/app/access"
	"billing/internal/app/payments"
	"billing/internal/domain"
	"billing/internal/gateway"
	"billing/internal/infrastructure/database"
	"billing/internal/repository/accounts_repo"
	"billing/internal/repository/outbox_repo"
	"billing/internal/repository/payments_repo"
	"billing/internal/repository/students_repo"
)

const webhookSecret = "s3cret"

type testServer struct {
	handler http.Handler
	outbox  *outbox_repo.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	accounts := accounts_repo.NewMemoryRepository()
	require.NoError(t, accounts.CreateAccountTx(context.Background(), nil, &domain.Account{
		ID:            "parent-1",
		PaymentStatus: domain.AccountStatusPending,
		Beneficiaries: []domain.Beneficiary{{StudentID: "student-1", Relationship: domain.RelationshipMother}},
	}))
	students := students_repo.NewMemoryRepository(
		domain.Student{ID: "student-1", SchoolID: "school-1", FirstName: "Afi", LastName: "Dossou"},
		domain.Student{ID: "student-2", SchoolID: "school-1", FirstName: "Koffi", LastName: "Dossou"},
	)
	paymentStore := payments_repo.NewMemoryRepository()
	outbox := outbox_repo.NewMemoryRepository()

	svc := payments.NewPaymentService(nil, database.NewMemoryTxRunner(), accounts, paymentStore, students, outbox,
		gateway.NewAdapter(gateway.Config{Sandbox: true}, logger), "payment_settlements", logger)
	gate := access.NewGate(nil, accounts, paymentStore, access.DefaultWindow, logger)

	return &testServer{
		handler: NewRouter(Options{WebhookSecret: webhookSecret}, svc, gate, logger),
		outbox:  outbox,
	}
}

func (s *testServer) do(t *testing.T, method, path, payerID string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if payerID != "" {
		req.Header.Set(access.PayerHeader, payerID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) webhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mobile-money", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBulletinAccessFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/payments", "parent-1", map[string]any{
		"studentId":           "student-1",
		"amount":              50000,
		"paymentMethod":       "mobile_money",
		"phoneNumber":         "22997000000",
		"mobileMoneyProvider": "mtn",
		"trimester":           "first",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[payments.CreatePaymentResponse](t, rec)
	txID := created.Payment.TransactionID
	require.True(t, strings.HasPrefix(txID, "SBX-MTN-"), txID)
	require.Equal(t, domain.PaymentStatusPending, created.Payment.Status)

	rec = s.do(t, http.MethodGet, "/access/bulletins/student-1", "parent-1", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	denied := decode[errorResponse](t, rec)
	require.NotNil(t, denied.Decision)
	require.Equal(t, access.ReasonUnpaid, denied.Decision.Reason)

	body := []byte(fmt.Sprintf(`{"transactionId":%q,"status":"SUCCESSFUL","amount":50000,"provider":"mtn"}`, txID))
	rec = s.webhook(t, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.webhook(t, body, "sha256="+Sign([]byte(webhookSecret), body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[domain.Payment](t, rec)
	require.Equal(t, domain.PaymentStatusCompleted, settled.Status)
	require.True(t, settled.AmountPaid.Equal(decimal.NewFromInt(50000)))

	// A redelivered webhook is a no-op that still answers 200.
	rec = s.webhook(t, body, Sign([]byte(webhookSecret), body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.outbox.Messages(), 1)

	rec = s.do(t, http.MethodGet, "/access/bulletins/student-1", "parent-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decision := decode[access.Decision](t, rec)
	require.True(t, decision.Authorized)
	require.Equal(t, access.ReasonPaid, decision.Reason)

	rec = s.do(t, http.MethodGet, "/access/bulletins/student-2", "parent-1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/accounts/parent-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	account := decode[domain.Account](t, rec)
	require.True(t, account.AmountPaid.Equal(decimal.NewFromInt(50000)))
	require.Equal(t, domain.AccountStatusPaid, account.PaymentStatus)

	rec = s.do(t, http.MethodGet, "/payments/transaction/"+txID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/accounts/parent-1/payments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]domain.Payment](t, rec), 1)
}

func TestCreatePaymentErrors(t *testing.T) {
	s := newTestServer(t)

	var tests = []struct {
		name    string
		payerID string
		body    map[string]any
		status  int
	}{
		{
			name:   "missing payer header",
			body:   map[string]any{"studentId": "student-1", "amount": 100, "paymentMethod": "cash", "trimester": "first"},
			status: http.StatusBadRequest,
		},
		{
			name:    "invalid amount",
			payerID: "parent-1",
			body:    map[string]any{"studentId": "student-1", "amount": 0, "paymentMethod": "cash", "trimester": "first"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "unlinked student",
			payerID: "parent-1",
			body:    map[string]any{"studentId": "student-2", "amount": 100, "paymentMethod": "cash", "trimester": "first"},
			status:  http.StatusForbidden,
		},
		{
			name:    "unknown payer",
			payerID: "ghost",
			body:    map[string]any{"studentId": "student-1", "amount": 100, "paymentMethod": "cash", "trimester": "first"},
			status:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/payments", tt.payerID, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader("{not json"))
	req.Header.Set(access.PayerHeader, "parent-1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashPaymentGrantsAccess(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/payments", "parent-1", map[string]any{
		"studentId":     "student-1",
		"amount":        20000,
		"paymentMethod": "cash",
		"trimester":     "second",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[payments.CreatePaymentResponse](t, rec)
	require.Equal(t, domain.PaymentStatusCompleted, created.Payment.Status)

	rec = s.do(t, http.MethodGet, "/payments/"+created.Payment.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/access/bulletins/student-1", "parent-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/accounts", "", map[string]any{
		"payerId":       "parent-2",
		"beneficiaries": []map[string]string{{"studentId": "student-2", "relationship": "guardian"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/accounts", "", map[string]any{"payerId": "parent-2"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/accounts/parent-2/beneficiaries", "", map[string]string{
		"studentId": "student-1", "relationship": "father",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decode[domain.Account](t, rec).Beneficiaries, 2)

	rec = s.do(t, http.MethodPost, "/accounts/parent-2/reconcile", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/accounts/nobody", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/payments/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookErrors(t *testing.T) {
	s := newTestServer(t)
	sign := func(b []byte) string { return Sign([]byte(webhookSecret), b) }

	unknown := []byte(`{"transactionId":"SBX-MTN-404","status":"completed","amount":100}`)
	rec := s.webhook(t, unknown, sign(unknown))
	require.Equal(t, http.StatusNotFound, rec.Code)

	malformed := []byte(`{"transactionId":`)
	rec = s.webhook(t, malformed, sign(malformed))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.webhook(t, unknown, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
