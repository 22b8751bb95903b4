package payments_http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"billing/internal/app/access"
	"billing/internal/app/payments"
	"billing/internal/domain"
)

type PaymentHandler struct {
	service    payments.PaymentService
	logger     *zap.Logger
	writeError access.ErrorRenderer
}

func NewPaymentHandler(s payments.PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l, writeError: errorWriter(l)}
}

type pendingResponse struct {
	TransactionID string               `json:"transactionId"`
	Status        domain.PaymentStatus `json:"status"`
	Error         string               `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError(errors.New("invalid request body"))
	}
	return nil
}

func (h *PaymentHandler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	payerID, err := access.PayerID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req payments.CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.PayerID = payerID

	resp, err := h.service.InitiatePayment(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, resp)
}

func (h *PaymentHandler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, payment)
}

func (h *PaymentHandler) GetPaymentByTransactionHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPaymentByTransactionID(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, payment)
}

// VerifyPaymentHandler answers 503 with a pending body when the provider cannot
// be reached, so the client knows to retry later.
func (h *PaymentHandler) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	payment, err := h.service.VerifyPayment(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			h.logger.Warn("Verification deferred, gateway unavailable",
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			)
			writeJSON(w, h.logger, http.StatusServiceUnavailable, pendingResponse{
				TransactionID: transactionID,
				Status:        domain.PaymentStatusPending,
				Error:         domain.ErrGatewayUnavailable.Error(),
			})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, payment)
}

func (h *PaymentHandler) BulletinAccessHandler(w http.ResponseWriter, r *http.Request) {
	decision, ok := access.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.New("access decision missing from request context"))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, decision)
}
