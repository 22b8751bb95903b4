package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
)

// Provider identifies a mobile-money network.
type Provider string

const (
	ProviderMTN     Provider = "mtn"
	ProviderMoov    Provider = "moov"
	ProviderCeltiis Provider = "celtiis"
)

var knownProviders = map[Provider]struct{}{
	ProviderMTN:     {},
	ProviderMoov:    {},
	ProviderCeltiis: {},
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownProviders[p]; !ok {
		return "", fmt.Errorf("provider %q: %w", s, domain.ErrUnsupportedProvider)
	}
	return p, nil
}

type InitiateRequest struct {
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	Provider    Provider
	Description string
	// Reference is our payment id, echoed back by providers that support it.
	Reference string
}

type InitiateResult struct {
	TransactionID string
	PaymentURL    string
	USSDCode      string
	Status        domain.PaymentStatus
}

type VerifyResult struct {
	TransactionID string
	Status        domain.PaymentStatus
	// Amount is zero when the provider does not report one.
	Amount decimal.Decimal
}

// Client talks to one upstream: the aggregator or a single provider.
type Client interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
}

// NormalizeStatus maps a provider status onto the payment lifecycle.
// Anything unrecognised stays pending so it can be verified again later.
func NormalizeStatus(raw string) domain.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "completed", "approved":
		return domain.PaymentStatusCompleted
	case "failed", "cancelled", "canceled", "declined", "rejected", "expired":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

func isPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "", v == "changeme":
		return true
	case strings.HasPrefix(v, "your_"), strings.HasPrefix(v, "xxx"):
		return true
	case strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">"):
		return true
	}
	return false
}
