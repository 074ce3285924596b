package bank

import (
	"context"
	"time"
)

type Repository interface {
	// Record appends the entry, computing BalanceAfter from the latest
	// stored entry in the same statement so concurrent writers cannot fork
	// the running balance.
	Record(ctx context.Context, t *Transaction) (*Transaction, error)

	// GetBalance returns the latest entry's running balance, zero for an
	// empty ledger.
	GetBalance(ctx context.Context) (Money, error)

	ListBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]Transaction, int, error)
}
