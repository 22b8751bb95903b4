package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"billing/internal/util"
)

// MTNConfig holds MoMo collection API credentials.
type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
}

func (c MTNConfig) configured() bool {
	return c.BaseURL != "" &&
		!isPlaceholder(c.SubscriptionKey) &&
		!isPlaceholder(c.APIUser) &&
		!isPlaceholder(c.APIKey)
}

const tokenExpiryMargin = 30 * time.Second

type mtnClient struct {
	http *resty.Client
	cfg  MTNConfig
	now  func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewMTNClient(cfg MTNConfig, timeout time.Duration) Client {
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	return &mtnClient{
		http: newRestyClient(cfg.BaseURL, timeout).
			SetHeader("Ocp-Apim-Subscription-Key", cfg.SubscriptionKey),
		cfg: cfg,
		now: time.Now,
	}
}

type mtnToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *mtnClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenExpiryMargin)) {
		return c.token, nil
	}

	var out mtnToken
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey).
		SetResult(&out).
		Post("/collection/token/")
	if err := checkResponse("mtn token", resp, err); err != nil {
		return "", err
	}
	c.token = out.AccessToken
	c.expiresAt = c.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return c.token, nil
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnRequestToPay struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ExternalID   string          `json:"externalId"`
	Payer        mtnParty        `json:"payer"`
	PayerMessage string          `json:"payerMessage"`
	PayeeNote    string          `json:"payeeNote"`
}

type mtnRequestToPayStatus struct {
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
}

func (c *mtnClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	referenceID := util.GenerateUUID()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Reference-Id", referenceID).
		SetHeader("X-Target-Environment", c.cfg.TargetEnvironment).
		SetBody(mtnRequestToPay{
			Amount:       req.Amount,
			Currency:     req.Currency,
			ExternalID:   req.Reference,
			Payer:        mtnParty{PartyIDType: "MSISDN", PartyID: req.PhoneNumber},
			PayerMessage: req.Description,
			PayeeNote:    req.Description,
		}).
		Post("/collection/v1_0/requesttopay")
	if err := checkResponse("mtn request to pay", resp, err); err != nil {
		return nil, err
	}
	return &InitiateResult{
		TransactionID: referenceID,
		Status:        NormalizeStatus("pending"),
	}, nil
}

func (c *mtnClient) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out mtnRequestToPayStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Target-Environment", c.cfg.TargetEnvironment).
		SetPathParam("referenceId", transactionID).
		SetResult(&out).
		Get("/collection/v1_0/requesttopay/{referenceId}")
	if err := checkResponse(fmt.Sprintf("mtn status %s", transactionID), resp, err); err != nil {
		return nil, err
	}
	return &VerifyResult{
		TransactionID: transactionID,
		Status:        NormalizeStatus(out.Status),
		Amount:        out.Amount,
	}, nil
}
