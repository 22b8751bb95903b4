package payments_http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"billing/internal/app/payments"
	"billing/internal/domain"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
)

// WebhookHandler applies aggregator callbacks. A secret enables HMAC-SHA256
// signature checks over the raw body.
type WebhookHandler struct {
	service payments.PaymentService
	secret  []byte
	logger  *zap.Logger
	write   func(w http.ResponseWriter, r *http.Request, err error)
}

func NewWebhookHandler(s payments.PaymentService, secret string, l *zap.Logger) *WebhookHandler {
	h := &WebhookHandler{service: s, logger: l, write: errorWriter(l)}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// Sign returns the hex signature expected in SignatureHeader for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) validSignature(r *http.Request, body []byte) bool {
	if h.secret == nil {
		return true
	}
	got := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(SignatureHeader)), "sha256=")
	decoded, err := hex.DecodeString(got)
	if err != nil || len(decoded) == 0 {
		return false
	}
	want, _ := hex.DecodeString(Sign(h.secret, body))
	return hmac.Equal(decoded, want)
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.write(w, r, domain.NewValidationError(errors.New("unreadable request body")))
		return
	}

	if !h.validSignature(r, body) {
		h.logger.Warn("Webhook signature mismatch", zap.String("remote_addr", r.RemoteAddr))
		writeJSON(w, h.logger, http.StatusUnauthorized, errorResponse{Error: "invalid webhook signature"})
		return
	}

	var req payments.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.write(w, r, domain.NewValidationError(errors.New("invalid request body")))
		return
	}

	payment, err := h.service.HandleWebhook(r.Context(), req)
	if err != nil {
		h.write(w, r, err)
		return
	}

	h.logger.Info("Webhook processed",
		zap.String("transaction_id", payment.TransactionID),
		zap.String("status", string(payment.Status)),
	)
	writeJSON(w, h.logger, http.StatusOK, payment)
}
