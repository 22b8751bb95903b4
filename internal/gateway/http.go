package gateway

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"billing/internal/domain"
)

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
}

// checkResponse turns transport failures and non-2xx answers into domain errors.
// Response bodies are never included: they may echo credentials or payer data.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, domain.ErrGatewayUnavailable)
	}
	switch code := resp.StatusCode(); {
	case code >= 500:
		return fmt.Errorf("%s: status %d: %w", op, code, domain.ErrGatewayUnavailable)
	case code >= 400:
		return fmt.Errorf("%s: status %d: %w", op, code, domain.ErrProviderRejected)
	}
	return nil
}
