package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/domain"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var creditTracer = otel.Tracer("service/credit")

// CreditService runs the credit request workflow. Every store write is
// conditional on the status the transition started from.
type CreditService struct {
	store           port.CreditRequestStore
	wallet          port.WalletCreditor
	defaultCurrency string
	retry           resilience.Config
	metrics         *observability.Metrics
	logger          *zap.Logger
}

// NewCreditService creates the credit request service.
func NewCreditService(
	store port.CreditRequestStore,
	wallet port.WalletCreditor,
	defaultCurrency string,
	retry resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CreditService {
	return &CreditService{
		store:           store,
		wallet:          wallet,
		defaultCurrency: strings.ToUpper(defaultCurrency),
		retry:           retry,
		metrics:         metrics,
		logger:          logger,
	}
}

// ============================================================
// Queries
// ============================================================

func (s *CreditService) Get(ctx context.Context, id string) (*domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", id))

	return s.store.GetCreditRequest(ctx, id)
}

func (s *CreditService) List(ctx context.Context, filter domain.CreditRequestFilter) ([]domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.List")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status"}
	}
	return s.store.ListCreditRequests(ctx, filter)
}

// Submit creates a pending request on behalf of a requester.
func (s *CreditService) Submit(ctx context.Context, in domain.SubmitCreditRequest) (*domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.Submit")
	defer span.End()

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, &domain.ErrValidation{Field: "user_id", Message: "required"}
	}
	if in.Amount == nil {
		return nil, &domain.ErrValidation{Field: "amount", Message: "required"}
	}
	if *in.Amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := time.Now().UTC()
	amount := *in.Amount
	req := &domain.CreditRequest{
		ID:             uuid.New().String(),
		Status:         domain.CreditStatusPending,
		Amount:         &amount,
		Currency:       currency,
		UserID:         userID,
		AccountDetails: in.AccountDetails,
		Notes:          strings.TrimSpace(in.Notes),
		SubmittedAt:    now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateCreditRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("credit request submitted",
		zap.String("credit_request_id", req.ID),
		zap.String("user_id", userID),
	)
	return req, nil
}

// ============================================================
// Review transitions
// ============================================================

// Approve moves a pending request to approved.
func (s *CreditService) Approve(ctx context.Context, id, notes, adminID string) (*domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.Approve")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", id))

	return s.transition(ctx, id, "approve", adminID, func(cur domain.CreditRequest, now time.Time) (domain.CreditRequest, error) {
		return cur.Approve(notes, adminID, now)
	})
}

// Reject moves a pending or approved request to rejected.
func (s *CreditService) Reject(ctx context.Context, id, reason, adminID string) (*domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.Reject")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", id))

	return s.transition(ctx, id, "reject", adminID, func(cur domain.CreditRequest, now time.Time) (domain.CreditRequest, error) {
		return cur.Reject(reason, adminID, now)
	})
}

func (s *CreditService) transition(
	ctx context.Context,
	id, action, adminID string,
	apply func(domain.CreditRequest, time.Time) (domain.CreditRequest, error),
) (*domain.CreditRequest, error) {
	cur, err := s.store.GetCreditRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := apply(*cur, time.Now().UTC())
	if err != nil {
		s.metrics.IncrCreditTransition(action, observability.ResultFailure)
		return nil, err
	}
	if err := s.store.UpdateCreditRequest(ctx, &next, cur.Status); err != nil {
		s.metrics.IncrCreditTransition(action, observability.ResultFailure)
		return nil, s.staleAs(ctx, id, action, err)
	}

	s.metrics.IncrCreditTransition(action, observability.ResultSuccess)
	s.logger.Info("credit request transitioned",
		zap.String("credit_request_id", id),
		zap.String("admin_id", adminID),
		zap.String("action", action),
		zap.String("status", string(next.Status)),
	)
	return &next, nil
}

// ============================================================
// Processing
// ============================================================

// Process credits the requester's wallet and marks the request processed.
//
// The request is first claimed (approved -> processing) so only one caller
// reaches the wallet. A failed credit restores the approved snapshot. A
// credit whose completion cannot be persisted stays processing for the
// Reconciler, which replays it under the same idempotency key.
func (s *CreditService) Process(ctx context.Context, id, reference, notes, adminID string) (*domain.CreditRequest, error) {
	ctx, span := creditTracer.Start(ctx, "CreditService.Process")
	defer span.End()
	span.SetAttributes(attribute.String("credit_request.id", id))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("credit_process", time.Since(start)) }()

	cur, err := s.store.GetCreditRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cur.ValidateProcess(); err != nil {
		s.metrics.IncrCreditTransition("process", observability.ResultFailure)
		return nil, err
	}

	claimed, err := cur.BeginProcessing(reference, adminID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCreditRequest(ctx, &claimed, domain.CreditStatusApproved); err != nil {
		s.metrics.IncrCreditTransition("process", observability.ResultFailure)
		return nil, s.staleAs(ctx, id, "process", err)
	}

	res, err := s.wallet.CreditWallet(ctx, domain.WalletCredit{
		UserID:         claimed.UserID,
		Amount:         *claimed.Amount,
		Currency:       claimed.Currency,
		Reference:      claimed.WalletReference(reference),
		IdempotencyKey: claimed.WalletIdempotencyKey(),
	})
	if err != nil {
		s.metrics.IncrExternalError("wallet")
		s.metrics.IncrCreditTransition("process", observability.ResultFailure)
		s.restore(ctx, cur)
		return nil, dependencyError("wallet", err)
	}

	done, err := claimed.CompleteProcessing(reference, notes, adminID, res.WalletTransactionID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, &done); err != nil {
		s.metrics.IncrCreditTransition("process", observability.ResultFailure)
		s.logger.Error("wallet credited but completion not persisted; left for reconciliation",
			zap.String("credit_request_id", id),
			zap.String("wallet_transaction_id", res.WalletTransactionID),
			zap.Error(err),
		)
		return nil, dependencyError("credit-store", err)
	}

	s.metrics.IncrCreditTransition("process", observability.ResultSuccess)
	s.logger.Info("credit request processed",
		zap.String("credit_request_id", id),
		zap.String("admin_id", adminID),
		zap.String("wallet_transaction_id", res.WalletTransactionID),
	)
	return &done, nil
}

// complete persists processing -> processed with retries. A stale status is
// final: someone else already finished or reverted the request.
func (s *CreditService) complete(ctx context.Context, done *domain.CreditRequest) error {
	ctx = context.WithoutCancel(ctx)
	return resilience.RetryWithBackoff(ctx, s.retry, func() error {
		err := s.store.UpdateCreditRequest(ctx, done, domain.CreditStatusProcessing)
		if errors.Is(err, domain.ErrStatusChanged) {
			return resilience.Permanent(err)
		}
		return err
	})
}

// restore writes back the approved snapshot taken before the claim.
func (s *CreditService) restore(ctx context.Context, snapshot *domain.CreditRequest) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdateCreditRequest(ctx, snapshot, domain.CreditStatusProcessing); err != nil {
		s.logger.Error("failed to restore credit request after wallet failure",
			zap.String("credit_request_id", snapshot.ID),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("wallet credit failed; credit request restored to approved",
		zap.String("credit_request_id", snapshot.ID),
	)
}

// staleAs turns a lost compare-and-set into an invalid state error carrying
// the status that won.
func (s *CreditService) staleAs(ctx context.Context, id, action string, err error) error {
	if !errors.Is(err, domain.ErrStatusChanged) {
		return err
	}
	cur, getErr := s.store.GetCreditRequest(ctx, id)
	if getErr != nil {
		return getErr
	}
	return &domain.ErrInvalidState{Resource: "credit request", ID: id, Status: string(cur.Status), Action: action}
}

// dependencyError keeps typed availability errors and wraps anything else.
func dependencyError(service string, err error) error {
	var (
		dep     *domain.ErrDependency
		open    *domain.ErrCircuitOpen
		timeout *domain.ErrTimeout
	)
	if errors.As(err, &dep) || errors.As(err, &open) || errors.As(err, &timeout) {
		return err
	}
	return &domain.ErrDependency{Service: service, Err: err}
}
