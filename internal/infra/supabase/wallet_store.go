package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

// creditWalletArgs are the parameters of the credit_wallet Postgres function.
// The function inserts into the wallet ledger and returns the existing row
// when p_idempotency_key was seen before.
type creditWalletArgs struct {
	UserID         string  `json:"p_user_id"`
	Amount         float64 `json:"p_amount"`
	Currency       string  `json:"p_currency"`
	Reference      string  `json:"p_reference"`
	IdempotencyKey string  `json:"p_idempotency_key"`
}

// CreditWallet calls rpc/credit_wallet.
func (c *Client) CreditWallet(ctx context.Context, credit domain.WalletCredit) (*domain.WalletCreditResult, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreditWallet")
	defer span.End()
	span.SetAttributes(
		attribute.String("wallet.user_id", credit.UserID),
		attribute.String("wallet.idempotency_key", credit.IdempotencyKey),
	)

	args := creditWalletArgs{
		UserID:         credit.UserID,
		Amount:         credit.Amount,
		Currency:       credit.Currency,
		Reference:      credit.Reference,
		IdempotencyKey: credit.IdempotencyKey,
	}

	var result domain.WalletCreditResult
	err := c.call(ctx, "wallet", func() error {
		body, err := c.doRequest(ctx, http.MethodPost, "rpc/credit_wallet", args, "")
		if err != nil {
			return err
		}
		return decodeWalletResult(body, &result)
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &domain.ErrDependency{Service: "supabase/wallet", Err: fmt.Errorf("credit_wallet reported failure")}
	}
	return &result, nil
}

// decodeWalletResult accepts either a single object or a one-element array.
func decodeWalletResult(body []byte, out *domain.WalletCreditResult) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []domain.WalletCreditResult
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return fmt.Errorf("decode credit_wallet: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("credit_wallet returned no rows")
		}
		*out = rows[0]
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode credit_wallet: %w", err)
	}
	return nil
}

var _ port.WalletCreditor = (*Client)(nil)
