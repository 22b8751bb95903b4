package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"billing/internal/domain"
	"billing/internal/util"
)

const sandboxPrefix = "SBX"

// sandboxClient answers locally. Initiations stay pending and every
// verification reports completed without an amount.
type sandboxClient struct{}

func (sandboxClient) Initiate(_ context.Context, req InitiateRequest) (*InitiateResult, error) {
	tag := strings.ToUpper(string(req.Provider))
	if tag == "" {
		tag = "AGG"
	}
	return &InitiateResult{
		TransactionID: util.GenerateTransactionID(sandboxPrefix + "-" + tag),
		Status:        domain.PaymentStatusPending,
	}, nil
}

func (sandboxClient) Verify(_ context.Context, transactionID string) (*VerifyResult, error) {
	return &VerifyResult{
		TransactionID: transactionID,
		Status:        domain.PaymentStatusCompleted,
		Amount:        decimal.Zero,
	}, nil
}
