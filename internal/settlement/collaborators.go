// Package settlement implements the atomic trip settlement: the
// wallet-balance debit, commission split, and driver credit deduction
// that together finish a trip in one ACID transaction, plus the
// separate idempotent driver payout path.
package settlement

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreditDeductor deducts one credit from a driver's package balance as
// part of the settlement transaction, writing an append-only ledger
// row in the same tx so the ledger and drivers.credit_balance never
// drift apart. Implemented by internal/creditledger.Repository.
type CreditDeductor interface {
	DeductOneInTx(ctx context.Context, tx pgx.Tx, driverID, tripID uuid.UUID) error
}

// StripeTransferer is the narrow Stripe surface the payout path needs.
// Implemented by StripeClient; kept minimal so tests can stub the
// transfer call without the SDK.
type StripeTransferer interface {
	CreateTransfer(ctx context.Context, idempotencyKey string, amountCents int64, currency, destinationAccountID, description string) (stripeTransferID string, err error)
}
