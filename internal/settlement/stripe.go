package settlement

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/balancetransaction"
	"github.com/stripe/stripe-go/v83/transfer"
)

// StripeClient wraps the narrow Stripe surface settlement and
// reconciliation need: driver payout transfers and the
// balance-transaction aggregate reconciliation reads against.
type StripeClient struct {
	apiKey string
}

// NewStripeClient wires a Stripe API client.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{apiKey: apiKey}
}

// CreateTransfer issues a driver payout transfer, stamped with
// idempotencyKey so a retried call (e.g. after a network timeout)
// never creates a second transfer for the same payout row.
func (s *StripeClient) CreateTransfer(ctx context.Context, idempotencyKey string, amountCents int64, currency, destinationAccountID, description string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccountID),
		Description: stripe.String(description),
	}
	params.SetIdempotencyKey(idempotencyKey)
	params.Context = ctx

	t, err := transfer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe transfer failed: %w", err)
	}
	return t.ID, nil
}

// AggregateTotal sums Stripe's reported balance transaction amounts in
// [start, end), the provider-side half of the daily reconciliation
// comparison. Amounts are returned in the provider's minor unit (cents);
// callers divide by 100 before comparing against the dollar-denominated
// ledger sum.
func (s *StripeClient) AggregateTotal(ctx context.Context, startUnix, endUnix int64) (int64, error) {
	params := &stripe.BalanceTransactionListParams{}
	params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: startUnix, LesserThan: endUnix}
	params.Context = ctx

	var total int64
	iter := balancetransaction.List(params)
	for iter.Next() {
		total += iter.BalanceTransaction().Amount
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("stripe balance transaction list failed: %w", err)
	}
	return total, nil
}
