// Package reconciliation implements the daily reconciliation job: the
// COMPLETED-transaction total compared against the payment provider's
// aggregate for the same window, and the per-driver sweep that checks
// each driver's credit balance against the running sum of their ledger.
package reconciliation

import (
	"context"

	"github.com/google/uuid"
)

// ProviderAggregator is the narrow Stripe surface the job reads from.
// Implemented by internal/settlement.StripeClient; amounts are in the
// provider's minor unit (cents) over a Unix-second half-open range,
// matching Stripe's balance-transaction list API directly rather than
// introducing a unit conversion this package would have to trust.
type ProviderAggregator interface {
	AggregateTotal(ctx context.Context, startUnix, endUnix int64) (int64, error)
}

// AdminAlerter records an event for the admin audit surface. Satisfied
// by internal/routing.AlertRepository — the same admin_alerts table
// every component's alerts land in.
type AdminAlerter interface {
	RecordAlert(ctx context.Context, alertType, message string) error
}

// LedgerVerifier checks one driver's creditBalance against the running
// sum of their credit ledger. Implemented by
// internal/creditledger.Service.
type LedgerVerifier interface {
	VerifyLedgerInvariant(ctx context.Context, driverID uuid.UUID) (balance, ledgerSum int, match bool, err error)
}
