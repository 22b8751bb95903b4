package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// USSDConfig configures a provider that collects through a USSD push to the payer's handset.
type USSDConfig struct {
	BaseURL    string
	APIKey     string
	MerchantID string
}

func (c USSDConfig) configured() bool {
	return c.BaseURL != "" && !isPlaceholder(c.APIKey) && !isPlaceholder(c.MerchantID)
}

type ussdClient struct {
	provider Provider
	http     *resty.Client
}

func NewUSSDClient(provider Provider, cfg USSDConfig, timeout time.Duration) Client {
	return &ussdClient{
		provider: provider,
		http: newRestyClient(cfg.BaseURL, timeout).
			SetAuthToken(cfg.APIKey).
			SetHeader("X-Merchant-Id", cfg.MerchantID),
	}
}

type ussdPushRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	MSISDN      string          `json:"msisdn"`
	Reference   string          `json:"reference"`
	Description string          `json:"description"`
}

type ussdTransaction struct {
	TransactionID string          `json:"transaction_id"`
	USSDCode      string          `json:"ussd_code"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

func (c *ussdClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	var out ussdTransaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(ussdPushRequest{
			Amount:      req.Amount,
			Currency:    req.Currency,
			MSISDN:      req.PhoneNumber,
			Reference:   req.Reference,
			Description: req.Description,
		}).
		SetResult(&out).
		Post("/payments/ussd-push")
	if err := checkResponse(fmt.Sprintf("%s ussd push", c.provider), resp, err); err != nil {
		return nil, err
	}
	return &InitiateResult{
		TransactionID: out.TransactionID,
		USSDCode:      out.USSDCode,
		Status:        NormalizeStatus(out.Status),
	}, nil
}

func (c *ussdClient) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	var out ussdTransaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", transactionID).
		SetResult(&out).
		Get("/payments/{id}")
	if err := checkResponse(fmt.Sprintf("%s verify", c.provider), resp, err); err != nil {
		return nil, err
	}
	return &VerifyResult{
		TransactionID: transactionID,
		Status:        NormalizeStatus(out.Status),
		Amount:        out.Amount,
	}, nil
}
