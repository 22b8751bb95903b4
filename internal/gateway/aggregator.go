package gateway

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

type AggregatorConfig struct {
	BaseURL   string
	PublicKey string
	SecretKey string
}

func (c AggregatorConfig) configured() bool {
	return c.BaseURL != "" && !isPlaceholder(c.PublicKey) && !isPlaceholder(c.SecretKey)
}

type aggregatorClient struct {
	http *resty.Client
}

func NewAggregatorClient(cfg AggregatorConfig, timeout time.Duration) Client {
	return &aggregatorClient{
		http: newRestyClient(cfg.BaseURL, timeout).
			SetAuthToken(cfg.SecretKey).
			SetHeader("X-Public-Key", cfg.PublicKey),
	}
}

type aggregatorCustomer struct {
	PhoneNumber string `json:"phone_number"`
}

type aggregatorInitiateRequest struct {
	Amount      decimal.Decimal    `json:"amount"`
	Currency    string             `json:"currency"`
	Description string             `json:"description"`
	Reference   string             `json:"reference"`
	Mode        string             `json:"mode"`
	Customer    aggregatorCustomer `json:"customer"`
}

type aggregatorTransaction struct {
	TransactionID string          `json:"transaction_id"`
	PaymentURL    string          `json:"payment_url"`
	USSDCode      string          `json:"ussd_code"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
}

func (c *aggregatorClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	var out aggregatorTransaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(aggregatorInitiateRequest{
			Amount:      req.Amount,
			Currency:    req.Currency,
			Description: req.Description,
			Reference:   req.Reference,
			Mode:        string(req.Provider),
			Customer:    aggregatorCustomer{PhoneNumber: req.PhoneNumber},
		}).
		SetResult(&out).
		Post("/transactions")
	if err := checkResponse("aggregator initiate", resp, err); err != nil {
		return nil, err
	}
	return &InitiateResult{
		TransactionID: out.TransactionID,
		PaymentURL:    out.PaymentURL,
		USSDCode:      out.USSDCode,
		Status:        NormalizeStatus(out.Status),
	}, nil
}

func (c *aggregatorClient) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	var out aggregatorTransaction
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", transactionID).
		SetResult(&out).
		Get("/transactions/{id}")
	if err := checkResponse("aggregator verify", resp, err); err != nil {
		return nil, err
	}
	return &VerifyResult{
		TransactionID: transactionID,
		Status:        NormalizeStatus(out.Status),
		Amount:        out.Amount,
	}, nil
}
