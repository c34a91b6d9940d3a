// Package client holds HTTP clients for downstream services.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// WalletClient credits wallets through the Wallet API.
type WalletClient struct {
	rc     *resty.Client
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

type walletCreditBody struct {
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Reference string  `json:"reference"`
}

// NewWalletClient creates a WalletClient for baseURL.
func NewWalletClient(baseURL string, timeout time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *WalletClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WalletClient{rc: rc, cb: cb, cfg: cfg, logger: logger}
}

// CreditWallet posts a credit with the Idempotency-Key header, so a replayed
// call returns the original wallet transaction.
func (c *WalletClient) CreditWallet(ctx context.Context, credit domain.WalletCredit) (*domain.WalletCreditResult, error) {
	ctx, span := tracer.Start(ctx, "WalletClient.CreditWallet")
	defer span.End()
	span.SetAttributes(
		attribute.String("wallet.user_id", credit.UserID),
		attribute.String("wallet.idempotency_key", credit.IdempotencyKey),
	)

	path := fmt.Sprintf("/v1/wallets/%s/credits", url.PathEscape(credit.UserID))
	body := walletCreditBody{Amount: credit.Amount, Currency: credit.Currency, Reference: credit.Reference}

	result, err := c.cb.Execute(func() (interface{}, error) {
		var out domain.WalletCreditResult
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			resp, err := c.rc.R().
				SetContext(ctx).
				SetHeader("Idempotency-Key", credit.IdempotencyKey).
				SetBody(body).
				SetResult(&out).
				Post(path)
			if err != nil {
				return err
			}
			switch {
			case resp.IsSuccess():
				return nil
			case resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500:
				return fmt.Errorf("wallet API returned status %d", resp.StatusCode())
			default:
				return resilience.Permanent(fmt.Errorf("wallet API returned status %d: %s", resp.StatusCode(), resp.String()))
			}
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &out, nil
	})
	if err != nil {
		c.logger.Warn("wallet credit failed",
			zap.String("user_id", credit.UserID),
			zap.String("idempotency_key", credit.IdempotencyKey),
			zap.Error(err),
		)
		return nil, mapWalletError(ctx, err)
	}

	res := result.(*domain.WalletCreditResult)
	if !res.Success {
		return nil, &domain.ErrDependency{Service: "wallet", Err: errors.New("wallet reported failure")}
	}
	return res, nil
}

func mapWalletError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "wallet"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "wallet credit"}
	default:
		return &domain.ErrDependency{Service: "wallet", Err: err}
	}
}

var _ port.WalletCreditor = (*WalletClient)(nil)
