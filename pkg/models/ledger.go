package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TxCredit TransactionType = "CREDIT"
	TxDebit  TransactionType = "DEBIT"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// Transaction is the sole source of truth for a rider's wallet balance;
// Balance(u) = Σ(CREDIT.COMPLETED) − Σ(DEBIT.COMPLETED) and is never
// cached in a denormalized column.
type Transaction struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	UserID          uuid.UUID         `json:"user_id" db:"user_id"`
	TripID          *uuid.UUID        `json:"trip_id,omitempty" db:"trip_id"`
	Amount          float64           `json:"amount" db:"amount"`
	Type            TransactionType   `json:"type" db:"type"`
	Status          TransactionStatus `json:"status" db:"status"`
	StripePaymentID *string           `json:"stripe_payment_id,omitempty" db:"stripe_payment_id"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

type PayoutStatus string

const (
	PayoutPendingReview PayoutStatus = "PENDING_MANUAL_REVIEW"
	PayoutProcessing    PayoutStatus = "PROCESSING"
	PayoutCompleted     PayoutStatus = "COMPLETED"
	PayoutFailed        PayoutStatus = "FAILED"
)

// Payout is a driver transfer; StripeTransferID is only ever set once
// the payout reaches COMPLETED.
type Payout struct {
	ID               uuid.UUID    `json:"id" db:"id"`
	DriverID         uuid.UUID    `json:"driver_id" db:"driver_id"`
	Amount           float64      `json:"amount" db:"amount"`
	Status           PayoutStatus `json:"status" db:"status"`
	StripeTransferID *string      `json:"stripe_transfer_id,omitempty" db:"stripe_transfer_id"`
	IdempotencyKey   string       `json:"idempotency_key" db:"idempotency_key"`
	FailureReason    *string      `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}

// DriverCreditLedgerEntry is an append-only row; the driver's
// creditBalance is the running sum of CreditsDelta across their entries.
type DriverCreditLedgerEntry struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DriverID     uuid.UUID `json:"driver_id" db:"driver_id"`
	CreditsDelta int       `json:"credits_delta" db:"credits_delta"`
	Reason       string    `json:"reason" db:"reason"`
	TripID       *uuid.UUID `json:"trip_id,omitempty" db:"trip_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type CreditPurchaseStatus string

const (
	CreditPurchasePending  CreditPurchaseStatus = "PENDING"
	CreditPurchaseApproved CreditPurchaseStatus = "APPROVED"
	CreditPurchaseRejected CreditPurchaseStatus = "REJECTED"
)

// CreditPurchaseRequest is a driver's request to buy a credit package,
// held for admin review before any balance change.
type CreditPurchaseRequest struct {
	ID            uuid.UUID            `json:"id" db:"id"`
	DriverID      uuid.UUID            `json:"driver_id" db:"driver_id"`
	Credits       int                  `json:"credits" db:"credits"`
	Months        int                  `json:"months" db:"months"`
	AmountCharged float64              `json:"amount_charged" db:"amount_charged"`
	Status        CreditPurchaseStatus `json:"status" db:"status"`
	ReviewedBy    *uuid.UUID           `json:"reviewed_by,omitempty" db:"reviewed_by"`
	RejectReason  *string              `json:"reject_reason,omitempty" db:"reject_reason"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
	ReviewedAt    *time.Time           `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// ReconciliationLog is written daily by the reconciliation job.
type ReconciliationLog struct {
	ID            uuid.UUID `json:"id" db:"id"`
	PeriodStart   time.Time `json:"period_start" db:"period_start"`
	PeriodEnd     time.Time `json:"period_end" db:"period_end"`
	DBTotal       float64   `json:"db_total" db:"db_total"`
	ProviderTotal float64   `json:"provider_total" db:"provider_total"`
	Mismatch      float64   `json:"mismatch" db:"mismatch"`
	Details       string    `json:"details" db:"details"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
