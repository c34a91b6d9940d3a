package service

import (
	"context"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Reconciler finishes credit requests left in processing, either because
// completion could not be persisted after the wallet credit or because the
// process died mid-flight.
type Reconciler struct {
	store    port.CreditRequestStore
	wallet   port.WalletCreditor
	interval time.Duration
	after    time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewReconciler creates a reconciler that runs every interval and picks up
// requests whose last update is older than after.
func NewReconciler(
	store port.CreditRequestStore,
	wallet port.WalletCreditor,
	interval, after time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		wallet:   wallet,
		interval: interval,
		after:    after,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run reconciles on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce reconciles every stuck request and returns how many were settled.
//
// The wallet is replayed with the request's idempotency key, so a credit
// that already went through returns its original transaction. A wallet
// failure sends the request back to approved.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	ctx, span := creditTracer.Start(ctx, "Reconciler.RunOnce")
	defer span.End()

	stuck, err := r.store.ListCreditRequests(ctx, domain.CreditRequestFilter{
		Status:        domain.CreditStatusProcessing,
		UpdatedBefore: time.Now().UTC().Add(-r.after),
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("reconcile.candidates", len(stuck)))

	settled := 0
	for i := range stuck {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if r.reconcile(ctx, stuck[i]) {
			settled++
		}
	}
	return settled, nil
}

func (r *Reconciler) reconcile(ctx context.Context, req domain.CreditRequest) bool {
	log := r.logger.With(zap.String("credit_request_id", req.ID))
	if req.Amount == nil {
		log.Error("processing credit request has no amount; skipped")
		return false
	}

	res, err := r.wallet.CreditWallet(ctx, domain.WalletCredit{
		UserID:         req.UserID,
		Amount:         *req.Amount,
		Currency:       req.Currency,
		Reference:      req.WalletReference(""),
		IdempotencyKey: req.WalletIdempotencyKey(),
	})
	if err != nil {
		r.metrics.IncrExternalError("wallet")
		reverted, abortErr := req.AbortProcessing(time.Now().UTC())
		if abortErr != nil {
			log.Error("cannot revert credit request", zap.Error(abortErr))
			return false
		}
		if err := r.store.UpdateCreditRequest(ctx, &reverted, domain.CreditStatusProcessing); err != nil {
			log.Error("failed to revert credit request", zap.Error(err))
			return false
		}
		r.metrics.IncrReconciled("reverted")
		log.Warn("wallet replay failed; credit request reverted to approved", zap.Error(err))
		return true
	}

	done, err := req.CompleteProcessing("", "", req.ProcessedBy, res.WalletTransactionID, time.Now().UTC())
	if err != nil {
		log.Error("cannot complete credit request", zap.Error(err))
		return false
	}
	if err := r.store.UpdateCreditRequest(ctx, &done, domain.CreditStatusProcessing); err != nil {
		log.Error("failed to persist reconciled credit request", zap.Error(err))
		return false
	}
	r.metrics.IncrReconciled("processed")
	log.Info("credit request reconciled",
		zap.String("wallet_transaction_id", res.WalletTransactionID),
	)
	return true
}
