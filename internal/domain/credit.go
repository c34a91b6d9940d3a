package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ============================================================
// Credit Requests
// ============================================================

// CreditStatus is the review state of a credit request.
type CreditStatus string

const (
	// CreditStatusPending is the initial state set on submission.
	CreditStatusPending CreditStatus = "pending"
	// CreditStatusApproved means an admin accepted the request; funds not yet sent.
	CreditStatusApproved CreditStatus = "approved"
	// CreditStatusRejected is terminal.
	CreditStatusRejected CreditStatus = "rejected"
	// CreditStatusProcessing means a wallet credit is in flight for the request.
	CreditStatusProcessing CreditStatus = "processing"
	// CreditStatusProcessed is terminal; the wallet has been credited.
	CreditStatusProcessed CreditStatus = "processed"
)

// MinRejectionReasonLength is the minimum trimmed length of a rejection reason.
const MinRejectionReasonLength = 5

// Terminal reports whether no further transition is permitted from s.
func (s CreditStatus) Terminal() bool {
	return s == CreditStatusRejected || s == CreditStatusProcessed
}

// Valid reports whether s is a known status.
func (s CreditStatus) Valid() bool {
	switch s {
	case CreditStatusPending, CreditStatusApproved, CreditStatusRejected,
		CreditStatusProcessing, CreditStatusProcessed:
		return true
	}
	return false
}

// AccountDetails identifies where the requester expects the funds.
type AccountDetails struct {
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountHolder string `json:"account_holder,omitempty"`
}

// CreditRequest is a requester-submitted ask to add funds to a wallet.
type CreditRequest struct {
	ID                   string          `json:"id"`
	Status               CreditStatus    `json:"status"`
	Amount               *float64        `json:"amount"`
	Currency             string          `json:"currency"`
	UserID               string          `json:"user_id"`
	AccountDetails       *AccountDetails `json:"account_details,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	RejectionReason      string          `json:"rejection_reason,omitempty"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	ReviewedBy           string          `json:"reviewed_by,omitempty"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
	ProcessedBy          string          `json:"processed_by,omitempty"`
	WalletTransactionID  string          `json:"wallet_transaction_id,omitempty"`
	SubmittedAt          time.Time       `json:"submitted_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// CreditRequestFilter narrows ListCreditRequests.
type CreditRequestFilter struct {
	Status        CreditStatus
	UserID        string
	UpdatedBefore time.Time
	Limit         int
}

// SubmitCreditRequest is the body of POST /v1/credit-requests.
type SubmitCreditRequest struct {
	UserID         string          `json:"user_id"`
	Amount         *float64        `json:"amount"`
	Currency       string          `json:"currency"`
	AccountDetails *AccountDetails `json:"account_details,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// ReviewRequest is the body of the approve/reject/process endpoints.
type ReviewRequest struct {
	Notes                string `json:"notes,omitempty"`
	Reason               string `json:"reason,omitempty"`
	TransactionReference string `json:"transaction_reference,omitempty"`
}

// WalletCredit is the instruction sent to the wallet collaborator.
type WalletCredit struct {
	UserID         string
	Amount         float64
	Currency       string
	Reference      string
	IdempotencyKey string
}

// WalletCreditResult is the wallet collaborator's answer.
type WalletCreditResult struct {
	Success             bool   `json:"success"`
	WalletTransactionID string `json:"wallet_transaction_id"`
}

// ============================================================
// State machine
//
// pending  -> approved | rejected
// approved -> rejected | processing
// processing -> processed | approved (wallet failure compensation)
//
// Every transition works on a copy: on error the receiver is untouched.
// ============================================================

func (r CreditRequest) invalid(action string) error {
	return &ErrInvalidState{Resource: "credit request", ID: r.ID, Status: string(r.Status), Action: action}
}

// Approve moves a pending request to approved, keeping optional notes.
func (r CreditRequest) Approve(notes, adminID string, now time.Time) (CreditRequest, error) {
	if r.Status != CreditStatusPending {
		return r, r.invalid("approve")
	}
	r.Status = CreditStatusApproved
	if n := strings.TrimSpace(notes); n != "" {
		r.Notes = n
	}
	r.ReviewedBy = adminID
	r.UpdatedAt = now
	return r, nil
}

// Reject moves a pending or approved request to rejected. Financial fields are left as they are.
func (r CreditRequest) Reject(reason, adminID string, now time.Time) (CreditRequest, error) {
	if r.Status != CreditStatusPending && r.Status != CreditStatusApproved {
		return r, r.invalid("reject")
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < MinRejectionReasonLength {
		return r, &ErrValidation{Field: "reason", Message: "must be at least 5 characters"}
	}
	r.Status = CreditStatusRejected
	r.RejectionReason = reason
	r.ReviewedBy = adminID
	r.UpdatedAt = now
	return r, nil
}

// ValidateProcess checks every precondition of processing without changing anything.
func (r CreditRequest) ValidateProcess() error {
	if r.Status != CreditStatusApproved {
		return r.invalid("process")
	}
	if r.Amount == nil {
		return &ErrValidation{Field: "amount", Message: "required"}
	}
	if *r.Amount <= 0 {
		return &ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if strings.TrimSpace(r.UserID) == "" {
		return &ErrValidation{Field: "user_id", Message: "required: no target wallet"}
	}
	return nil
}

// BeginProcessing claims an approved request for a wallet credit. The
// reference is stored so a reconciliation retry reuses it.
func (r CreditRequest) BeginProcessing(reference, adminID string, now time.Time) (CreditRequest, error) {
	if err := r.ValidateProcess(); err != nil {
		return r, err
	}
	r.Status = CreditStatusProcessing
	if ref := strings.TrimSpace(reference); ref != "" {
		r.TransactionReference = ref
	}
	r.ProcessedBy = adminID
	r.UpdatedAt = now
	return r, nil
}

// CompleteProcessing records a successful wallet credit.
func (r CreditRequest) CompleteProcessing(reference, notes, adminID, walletTxID string, now time.Time) (CreditRequest, error) {
	if r.Status != CreditStatusProcessing {
		return r, r.invalid("complete")
	}
	r.Status = CreditStatusProcessed
	processedAt := now
	r.ProcessedAt = &processedAt
	r.ProcessedBy = adminID
	if ref := strings.TrimSpace(reference); ref != "" {
		r.TransactionReference = ref
	}
	if n := strings.TrimSpace(notes); n != "" {
		r.Notes = n
	}
	r.WalletTransactionID = walletTxID
	r.UpdatedAt = now
	return r, nil
}

// AbortProcessing returns a processing request to approved after a failed wallet credit.
func (r CreditRequest) AbortProcessing(now time.Time) (CreditRequest, error) {
	if r.Status != CreditStatusProcessing {
		return r, r.invalid("abort")
	}
	r.Status = CreditStatusApproved
	r.ProcessedBy = ""
	r.UpdatedAt = now
	return r, nil
}

// WalletIdempotencyKey is stable per request so a retried credit is deduplicated by the wallet.
func (r CreditRequest) WalletIdempotencyKey() string {
	return "credit-request:" + r.ID
}

// WalletReference is the reference passed to the wallet: the admin-supplied
// transaction reference, or the request ID when none was given.
func (r CreditRequest) WalletReference(reference string) string {
	if ref := strings.TrimSpace(reference); ref != "" {
		return ref
	}
	if r.TransactionReference != "" {
		return r.TransactionReference
	}
	return r.ID
}
