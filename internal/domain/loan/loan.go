package loan

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"lending-ledger/internal/pkg/apperrors"
	"lending-ledger/internal/pkg/money"
)

// DefaultMonthlyRate is the configured compounding rate: 20% per month.
var DefaultMonthlyRate = decimal.New(20, -2)

// Loan is one extension of credit. LastPrincipal and ProjectedBalance are
// cached derived fields; the event history is the source of truth and the
// projector is the only code allowed to validate or regenerate them.
type Loan struct {
	ID         int64
	CustomerID int64
	Code       string
	Principal  money.Money
	Fee        money.Money
	CreatedAt  time.Time

	// LastPrincipal is the disbursed principal net of all repayments, with
	// no interest component.
	LastPrincipal money.Money

	// ProjectedBalance is principal plus accrued, unpaid interest as of the
	// last compounding step.
	ProjectedBalance money.Money

	// NextCompoundingAt is the due timestamp of the next accrual period.
	NextCompoundingAt time.Time

	UpdatedAt time.Time
}

// Repayment is a payment applied against a loan. Immutable once created.
type Repayment struct {
	ID        int64
	LoanID    int64
	Amount    money.Money
	PaidAt    time.Time
	Note      string
	CreatedAt time.Time
}

// CompoundBalanceEvent is the immutable record of one interest-accrual step.
// Events are appended by the engine, never edited or deleted.
type CompoundBalanceEvent struct {
	ID            int64
	LoanID        int64
	OccurredAt    time.Time
	BalanceBefore money.Money
	BalanceAfter  money.Money
	Rate          money.Money
}

// NewLoan validates the inputs and returns a loan whose balances reflect the
// disbursed amount: the fee is deducted exactly once, here. The first
// compounding falls one calendar month after creation, day-of-month clamped.
func NewLoan(customerID int64, principal, fee money.Money, createdAt time.Time) (*Loan, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer id must be positive", apperrors.ErrInvalidArgument)
	}
	if !principal.IsPositive() {
		return nil, fmt.Errorf("%w: principal must be greater than zero", apperrors.ErrInvalidArgument)
	}
	if fee.IsNegative() {
		return nil, fmt.Errorf("%w: fee must not be negative", apperrors.ErrInvalidArgument)
	}
	if fee.GreaterThan(principal) {
		return nil, fmt.Errorf("%w: fee must not exceed principal", apperrors.ErrInvalidArgument)
	}
	if createdAt.IsZero() {
		return nil, fmt.Errorf("%w: creation timestamp is required", apperrors.ErrInvalidArgument)
	}

	disbursed := money.RoundCents(principal.Sub(fee))
	return &Loan{
		CustomerID:        customerID,
		Code:              NewLoanCode(createdAt),
		Principal:         money.RoundCents(principal),
		Fee:               money.RoundCents(fee),
		CreatedAt:         createdAt,
		LastPrincipal:     disbursed,
		ProjectedBalance:  disbursed,
		NextCompoundingAt: money.AddMonths(createdAt, 1),
	}, nil
}

// DisbursedAmount is the principal net of the upfront fee: the starting
// balance for replay.
func (l *Loan) DisbursedAmount() money.Money {
	return money.RoundCents(l.Principal.Sub(l.Fee))
}

const codeDigits = "0123456789"

// NewLoanCode builds a human-readable loan reference like
// LN-20250131142233-0481. Uniqueness is enforced by the database.
func NewLoanCode(at time.Time) string {
	return fmt.Sprintf("LN-%s-%s", at.Format("20060102150405"), randomString(codeDigits, 4))
}

func randomString(charset string, n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the platform is broken.
			panic(err)
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
