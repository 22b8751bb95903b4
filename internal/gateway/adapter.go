package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"billing/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Config struct {
	Sandbox    bool
	Timeout    time.Duration
	Currency   string
	Aggregator AggregatorConfig
	MTN        MTNConfig
	Moov       USSDConfig
	Celtiis    USSDConfig
}

// Gateway is what the settlement workflow needs from the outside world.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, provider Provider, transactionID string) (*VerifyResult, error)
}

// Adapter routes each call to the aggregator when one is configured and to
// the provider's own client otherwise.
type Adapter struct {
	aggregator Client
	routes     map[Provider]Client
	currency   string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if cfg.Sandbox {
		sandbox := sandboxClient{}
		logger.Info("Payment gateway running in sandbox mode, no provider will be called")
		return NewAdapterWithClients(nil, map[Provider]Client{
			ProviderMTN:     sandbox,
			ProviderMoov:    sandbox,
			ProviderCeltiis: sandbox,
		}, cfg.Currency, timeout, logger)
	}

	var aggregator Client
	if cfg.Aggregator.configured() {
		aggregator = NewAggregatorClient(cfg.Aggregator, timeout)
	}

	routes := make(map[Provider]Client)
	if cfg.MTN.configured() {
		routes[ProviderMTN] = NewMTNClient(cfg.MTN, timeout)
	}
	if cfg.Moov.configured() {
		routes[ProviderMoov] = NewUSSDClient(ProviderMoov, cfg.Moov, timeout)
	}
	if cfg.Celtiis.configured() {
		routes[ProviderCeltiis] = NewUSSDClient(ProviderCeltiis, cfg.Celtiis, timeout)
	}

	configured := make([]string, 0, len(routes))
	for p := range routes {
		configured = append(configured, string(p))
	}
	logger.Info("Payment gateway configured",
		zap.Bool("aggregator", aggregator != nil),
		zap.Strings("providers", configured),
	)
	return NewAdapterWithClients(aggregator, routes, cfg.Currency, timeout, logger)
}

func NewAdapterWithClients(aggregator Client, routes map[Provider]Client, currency string, timeout time.Duration, logger *zap.Logger) *Adapter {
	if routes == nil {
		routes = make(map[Provider]Client)
	}
	if currency == "" {
		currency = "XOF"
	}
	return &Adapter{
		aggregator: aggregator,
		routes:     routes,
		currency:   currency,
		timeout:    timeout,
		logger:     logger,
	}
}

func (a *Adapter) route(provider Provider) (Client, error) {
	if a.aggregator != nil {
		return a.aggregator, nil
	}
	client, ok := a.routes[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", provider, domain.ErrUnsupportedProvider)
	}
	return client, nil
}

func (a *Adapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	client, err := a.route(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = a.currency
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := client.Initiate(callCtx, req)
	if err != nil {
		err = a.normalizeError(callCtx, err)
		a.logger.Warn("Payment initiation failed",
			zap.String("provider", string(req.Provider)),
			zap.String("reference", req.Reference),
			zap.Error(err),
		)
		return nil, err
	}
	if res.TransactionID == "" {
		return nil, fmt.Errorf("%s initiate returned no transaction id: %w", req.Provider, domain.ErrProviderRejected)
	}

	a.logger.Info("Payment initiated with provider",
		zap.String("provider", string(req.Provider)),
		zap.String("transaction_id", res.TransactionID),
		zap.String("status", string(res.Status)),
	)
	return res, nil
}

func (a *Adapter) Verify(ctx context.Context, provider Provider, transactionID string) (*VerifyResult, error) {
	client, err := a.route(provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := client.Verify(callCtx, transactionID)
	if err != nil {
		err = a.normalizeError(callCtx, err)
		a.logger.Warn("Payment verification failed",
			zap.String("provider", string(provider)),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

// normalizeError keeps the domain errors clients already return and treats
// anything else, deadlines included, as the gateway being unavailable.
func (a *Adapter) normalizeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrGatewayUnavailable),
		errors.Is(err, domain.ErrProviderRejected),
		errors.Is(err, domain.ErrUnsupportedProvider):
		return err
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return fmt.Errorf("gateway call timed out: %w", domain.ErrGatewayUnavailable)
	default:
		return fmt.Errorf("gateway call failed: %w", domain.ErrGatewayUnavailable)
	}
}
