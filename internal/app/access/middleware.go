package access

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"billing/internal/domain"
)

// PayerHeader carries the authenticated payer id, set by the upstream gateway.
const PayerHeader = "X-Payer-ID"

type ctxKey struct{}

// DeniedError is returned for an unpaid or overdue payer. It unwraps to domain.ErrUnauthorized.
type DeniedError struct {
	Decision *Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("bulletin access denied: %s", e.Decision.Reason)
}

func (e *DeniedError) Unwrap() error {
	return domain.ErrUnauthorized
}

// ErrorRenderer writes err to the client. The HTTP layer owns the status mapping.
type ErrorRenderer func(w http.ResponseWriter, r *http.Request, err error)

// PayerID reads the payer id from the request header.
func PayerID(r *http.Request) (string, error) {
	payerID := strings.TrimSpace(r.Header.Get(PayerHeader))
	if payerID == "" {
		return "", domain.NewValidationError(nil, domain.FieldError{Field: PayerHeader, Error: PayerHeader + " header is required"})
	}
	return payerID, nil
}

// RequirePaid runs the gate for the payer in PayerHeader and the {studentParam}
// route parameter. Gated handlers only run for an authorized decision, which
// they can read back with FromContext.
func RequirePaid(gate Gate, studentParam string, renderError ErrorRenderer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payerID, err := PayerID(r)
			if err != nil {
				renderError(w, r, err)
				return
			}
			studentID := chi.URLParam(r, studentParam)

			decision, err := gate.Check(r.Context(), payerID, studentID)
			if err != nil {
				renderError(w, r, err)
				return
			}
			if !decision.Authorized {
				renderError(w, r, &DeniedError{Decision: decision})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, decision)))
		})
	}
}

func FromContext(ctx context.Context) (*Decision, bool) {
	decision, ok := ctx.Value(ctxKey{}).(*Decision)
	return decision, ok
}
