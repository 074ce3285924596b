package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount. All ledger arithmetic happens on
// decimal values and is rounded to cents only at well-defined points, never
// through float64.
type Money = decimal.Decimal

// Zero is the zero amount.
func Zero() Money { return decimal.Zero }

func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// MustFromString is for constants and tests only.
func MustFromString(s string) Money {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundCents rounds to 2 fractional digits, half away from zero. Balances in
// this ledger are non-negative, so this is round-half-up.
func RoundCents(d Money) Money {
	return d.Round(2)
}

// ApplyMonthlyRate returns one compounding step: balance * (1 + rate),
// rounded to cents.
func ApplyMonthlyRate(balance, rate Money) Money {
	return RoundCents(balance.Mul(decimal.NewFromInt(1).Add(rate)))
}

// Equal compares two amounts at the fixed-point scale.
func Equal(a, b Money) bool {
	return a.Equal(b)
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}
