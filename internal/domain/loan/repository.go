package loan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	CreateLoan(ctx context.Context, l *Loan) (*Loan, error)

	GetLoanByID(ctx context.Context, loanID int64) (*Loan, error)

	ListLoansByCustomer(ctx context.Context, customerID int64) ([]*Loan, error)

	ListLoansCreatedBetween(ctx context.Context, from, to time.Time) ([]*Loan, error)

	// ListDueLoanIDs returns the ids of loans whose next compounding is due
	// at or before asOf, for the sweep.
	ListDueLoanIDs(ctx context.Context, asOf time.Time) ([]int64, error)

	ListRepaymentsByLoan(ctx context.Context, loanID int64) ([]Repayment, error)

	ListRepaymentsPaidBetween(ctx context.Context, from, to time.Time) ([]Repayment, error)

	ListCompoundEventsByLoan(ctx context.Context, loanID int64) ([]CompoundBalanceEvent, error)

	// GetLoanForUpdate locks the loan row for the duration of the
	// transaction. Every read-modify-write on a loan goes through this, so
	// updates to one loan are serialized.
	GetLoanForUpdate(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error)

	// ApplyAdvanceInTx appends the advance's events and updates the loan's
	// cached balance and schedule inside the caller's transaction, so a
	// multi-period catch-up commits or rolls back as one unit.
	ApplyAdvanceInTx(ctx context.Context, tx pgx.Tx, loanID int64, adv Advance) error

	CreateRepaymentInTx(ctx context.Context, tx pgx.Tx, r *Repayment) (*Repayment, error)

	UpdateLoanBalancesInTx(ctx context.Context, tx pgx.Tx, loanID int64, lastPrincipal, projectedBalance Money, nextCompoundingAt time.Time) error

	GetCustomerSummaries(ctx context.Context) ([]CustomerSummary, error)

	GetOverallReport(ctx context.Context, from, to time.Time) (*OverallReport, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
