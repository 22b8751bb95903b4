package payments_http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"billing/internal/app/access"
	"billing/internal/domain"
)

type errorResponse struct {
	Error    string              `json:"error"`
	Fields   []domain.FieldError `json:"fields,omitempty"`
	Decision *access.Decision    `json:"decision,omitempty"`
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnsupportedProvider), errors.Is(err, domain.ErrProviderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDuplicateTransaction), errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorWriter returns the single place where service errors become HTTP responses.
func errorWriter(logger *zap.Logger) access.ErrorRenderer {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := statusFor(err)
		resp := errorResponse{Error: err.Error()}

		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			resp.Fields = vErr.Fields
		}
		var denied *access.DeniedError
		if errors.As(err, &denied) {
			resp.Decision = denied.Decision
		}

		switch status {
		case http.StatusInternalServerError:
			logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
			resp.Error = "internal server error"
		case http.StatusServiceUnavailable:
			logger.Warn("Payment gateway unavailable", zap.String("path", r.URL.Path), zap.Error(err))
			resp.Error = domain.ErrGatewayUnavailable.Error()
		default:
			logger.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
		}

		writeJSON(w, logger, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
