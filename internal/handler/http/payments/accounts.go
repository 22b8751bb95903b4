package payments_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"billing/internal/app/payments"
)

func (h *PaymentHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req payments.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Account created", zap.String("payer_id", account.ID))
	writeJSON(w, h.logger, http.StatusCreated, account)
}

func (h *PaymentHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "payerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, account)
}

func (h *PaymentHandler) ListAccountPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPayerPayments(r.Context(), chi.URLParam(r, "payerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, list)
}

func (h *PaymentHandler) LinkBeneficiaryHandler(w http.ResponseWriter, r *http.Request) {
	var req payments.BeneficiaryRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.service.LinkBeneficiary(r.Context(), chi.URLParam(r, "payerId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, account)
}

func (h *PaymentHandler) ReconcileAccountHandler(w http.ResponseWriter, r *http.Request) {
	payerID := chi.URLParam(r, "payerId")

	account, err := h.service.RepairAccount(r.Context(), payerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Account aggregates repaired",
		zap.String("payer_id", payerID),
		zap.String("amount_paid", account.AmountPaid.String()),
	)
	writeJSON(w, h.logger, http.StatusOK, account)
}
